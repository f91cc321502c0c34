package moderation

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ghostchat/backend/internal/config"
	"ghostchat/backend/internal/matching"
	"ghostchat/backend/internal/models"
	"ghostchat/backend/internal/storage"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingTransport struct {
	mu         sync.Mutex
	endNotices map[int64][]string
}

func (r *recordingTransport) SendMatchFound(userID int64) (bool, error) { return true, nil }

func (r *recordingTransport) SendChatEnded(userID int64, reasonKey string, offerRating bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endNotices[userID] = append(r.endNotices[userID], reasonKey)
	return true, nil
}

func newTestModeration(t *testing.T) (*Service, *matching.Engine, *storage.Service, *recordingTransport) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s := storage.NewService(db, rdb)
	require.NoError(t, s.Migrate())

	tr := &recordingTransport{endNotices: make(map[int64][]string)}
	engine := matching.NewEngine(s, tr, &config.Config{
		SoftExpandWindow: 45 * time.Second,
		SkipCooldown:     30 * time.Second,
	})
	engine.Now = func() time.Time { return baseTime }

	svc := NewService(s, engine)
	svc.Now = func() time.Time { return baseTime }
	return svc, engine, s, tr
}

func startChat(t *testing.T, e *matching.Engine, s *storage.Service, user1, user2 int64) {
	t.Helper()
	_, err := s.GetOrCreateUser(user1)
	require.NoError(t, err)
	_, err = s.GetOrCreateUser(user2)
	require.NoError(t, err)
	require.NoError(t, e.StartSearch(user2))
	require.NoError(t, e.StartSearch(user1))
	result, err := e.AttemptMatch(user1)
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestBanEndsActiveChat(t *testing.T) {
	svc, engine, s, tr := newTestModeration(t)
	startChat(t, engine, s, 1, 2)

	require.NoError(t, svc.Ban(2, 99))

	banned, err := svc.IsBanned(2)
	require.NoError(t, err)
	assert.True(t, banned)

	state, err := s.GetState(2)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, state)
	state, err = s.GetState(1)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, state)

	pair, err := s.ActivePair(1)
	require.NoError(t, err)
	assert.Nil(t, pair)

	// The partner hears the chat ended; the banned side hears nothing.
	assert.Equal(t, []string{"chat_ended"}, tr.endNotices[1])
	assert.Empty(t, tr.endNotices[2])
}

func TestBanPullsUserFromQueue(t *testing.T) {
	svc, engine, s, _ := newTestModeration(t)
	_, err := s.GetOrCreateUser(1)
	require.NoError(t, err)
	require.NoError(t, engine.StartSearch(1))

	require.NoError(t, svc.Ban(1, 99))

	pos, err := s.QueuePosition(1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pos)
	state, err := s.GetState(1)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, state)
}

func TestTempBanExpires(t *testing.T) {
	svc, _, s, _ := newTestModeration(t)
	_, err := s.GetOrCreateUser(1)
	require.NoError(t, err)

	require.NoError(t, svc.TempBan(1, time.Hour, 99))

	banned, err := svc.IsBanned(1)
	require.NoError(t, err)
	assert.True(t, banned)

	// Lazy expiry: the flag reads clear once the horizon passes.
	svc.Now = func() time.Time { return baseTime.Add(2 * time.Hour) }
	banned, err = svc.IsBanned(1)
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestUnbanClearsBothBanKinds(t *testing.T) {
	svc, _, s, _ := newTestModeration(t)
	_, err := s.GetOrCreateUser(1)
	require.NoError(t, err)

	require.NoError(t, svc.Ban(1, 99))
	require.NoError(t, svc.TempBan(1, time.Hour, 99))
	require.NoError(t, svc.Unban(1, 99))

	banned, err := svc.IsBanned(1)
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestMuteAndUnmute(t *testing.T) {
	svc, _, s, _ := newTestModeration(t)
	_, err := s.GetOrCreateUser(1)
	require.NoError(t, err)

	require.NoError(t, svc.Mute(1, 30*time.Minute, 99))
	muted, err := svc.IsMuted(1)
	require.NoError(t, err)
	assert.True(t, muted)

	require.NoError(t, svc.Unmute(1, 99))
	muted, err = svc.IsMuted(1)
	require.NoError(t, err)
	assert.False(t, muted)
}

func TestReportTriage(t *testing.T) {
	svc, _, s, _ := newTestModeration(t)
	_, err := s.GetOrCreateUser(1)
	require.NoError(t, err)
	_, err = s.GetOrCreateUser(2)
	require.NoError(t, err)

	require.NoError(t, svc.SubmitReport(1, 2, "spam"))
	svc.Now = func() time.Time { return baseTime.Add(time.Minute) }
	require.NoError(t, svc.SubmitReport(2, 1, "insult"))

	report, err := svc.NextOpenReport()
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "spam", report.Reason)

	require.NoError(t, svc.DismissReport(report.ID, 99))

	report, err = svc.NextOpenReport()
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "insult", report.Reason)

	require.NoError(t, svc.ResolveReportWithTempBan(report.ID, 99, 24*time.Hour))

	// The reported user (user 1) now carries a temp ban.
	banned, err := svc.IsBanned(1)
	require.NoError(t, err)
	assert.True(t, banned)

	report, err = svc.NextOpenReport()
	require.NoError(t, err)
	assert.Nil(t, report)
}
