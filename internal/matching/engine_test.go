package matching

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
	"ghostchat/backend/internal/models"
	"ghostchat/backend/internal/storage"
)

// fakeTransport records engine notifications and can simulate users who
// became unreachable.
type fakeTransport struct {
	mu           sync.Mutex
	matchNotices []int64
	endNotices   map[int64][]string
	unreachable  map[int64]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		endNotices:  make(map[int64][]string),
		unreachable: make(map[int64]bool),
	}
}

func (f *fakeTransport) SendMatchFound(userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreachable[userID] {
		return false, nil
	}
	f.matchNotices = append(f.matchNotices, userID)
	return true, nil
}

func (f *fakeTransport) SendChatEnded(userID int64, reasonKey string, offerRating bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreachable[userID] {
		return false, nil
	}
	f.endNotices[userID] = append(f.endNotices[userID], reasonKey)
	return true, nil
}

func (f *fakeTransport) endReasons(userID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endNotices[userID]
}

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *storage.Service, *fakeTransport) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().Truncate(time.Microsecond)
		},
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s := storage.NewService(db, rdb)
	require.NoError(t, s.Migrate())

	cfg := &config.Config{
		SoftExpandWindow: 45 * time.Second,
		SkipCooldown:     30 * time.Second,
	}
	tr := newFakeTransport()
	e := NewEngine(s, tr, cfg)
	e.Now = func() time.Time { return baseTime }
	return e, s, tr
}

func mustUser(t *testing.T, s *storage.Service, id int64) *models.User {
	t.Helper()
	user, err := s.GetOrCreateUser(id)
	require.NoError(t, err)
	return user
}

func mustState(t *testing.T, s *storage.Service, id int64) models.State {
	t.Helper()
	state, err := s.GetState(id)
	require.NoError(t, err)
	return state
}

func TestStartAndCancelSearch(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)

	require.NoError(t, e.StartSearch(1))
	assert.Equal(t, models.StateSearching, mustState(t, s, 1))
	size, err := s.QueueSize()
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)

	cancelled, err := e.CancelSearch(1)
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, models.StateIdle, mustState(t, s, 1))
	size, err = s.QueueSize()
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)

	// Second cancel has nothing to do.
	cancelled, err = e.CancelSearch(1)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestAttemptMatchAlone(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	require.NoError(t, e.StartSearch(1))

	result, err := e.AttemptMatch(1)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, models.StateSearching, mustState(t, s, 1))

	// Retrying without new peers is still a clean no-match.
	result, err = e.AttemptMatch(1)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestAttemptMatchPairsTwoSearchers(t *testing.T) {
	e, s, tr := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(1))

	result, err := e.AttemptMatch(1)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.EqualValues(t, 1, result.UserID)
	assert.EqualValues(t, 2, result.PartnerID)

	assert.Equal(t, models.StateChatting, mustState(t, s, 1))
	assert.Equal(t, models.StateChatting, mustState(t, s, 2))

	size, err := s.QueueSize()
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)

	pair, err := s.ActivePair(1)
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.EqualValues(t, 1, pair.PartnerOf(2))

	assert.ElementsMatch(t, []int64{1, 2}, tr.matchNotices)

	u1 := mustUser(t, s, 1)
	u2 := mustUser(t, s, 2)
	assert.Equal(t, 1, u1.ChatsCount)
	assert.Equal(t, 1, u2.ChatsCount)
}

func TestAttemptMatchSkipsNonSearchingCandidates(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(1))

	// Candidate left without dequeueing, their row says idle.
	require.NoError(t, s.SetState(2, models.StateIdle))

	result, err := e.AttemptMatch(1)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestStrictWithoutInterestsNeverMatches(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	require.NoError(t, s.SetPremiumUntil(1, baseTime.Add(24*time.Hour)))
	require.NoError(t, s.SetOnlyInterest(1, true))

	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(1))

	result, err := e.AttemptMatch(1)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, models.StateSearching, mustState(t, s, 1))
}

func TestStrictRequiresOverlap(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	mustUser(t, s, 3)
	require.NoError(t, s.SetPremiumUntil(1, baseTime.Add(24*time.Hour)))
	require.NoError(t, s.SetOnlyInterest(1, true))
	require.NoError(t, s.SetInterests(1, []string{"books"}))
	require.NoError(t, s.SetInterests(2, []string{"games"}))

	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(1))

	result, err := e.AttemptMatch(1)
	require.NoError(t, err)
	assert.Nil(t, result)

	require.NoError(t, s.SetInterests(3, []string{"books", "it"}))
	require.NoError(t, e.StartSearch(3))

	result, err = e.AttemptMatch(1)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.EqualValues(t, 3, result.PartnerID)
}

func TestInterestHoldRelaxesAfterWindow(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	require.NoError(t, s.SetInterests(1, []string{"books"}))

	// User 2 declares nothing, user 1 just joined: held to interests.
	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(1))

	result, err := e.AttemptMatch(1)
	require.NoError(t, err)
	assert.Nil(t, result)

	// Re-enqueue with a join time past the expand window.
	require.NoError(t, s.Enqueue(1, baseTime.Add(-60*time.Second)))

	result, err = e.AttemptMatch(1)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.EqualValues(t, 2, result.PartnerID)
}

func TestFreshPartnerPreferred(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	mustUser(t, s, 3)

	// Users 1 and 2 already chatted once.
	pair, err := s.CreatePairTx(1, 2, baseTime.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.EndPair(pair.ID, baseTime.Add(-30*time.Minute)))
	require.NoError(t, s.SetState(1, models.StateIdle))
	require.NoError(t, s.SetState(2, models.StateIdle))

	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(3))
	require.NoError(t, e.StartSearch(1))

	result, err := e.AttemptMatch(1)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.EqualValues(t, 3, result.PartnerID, "fresh partner outranks a repeat")
}

func TestPremiumCandidateOutranksOnTie(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	mustUser(t, s, 3)
	require.NoError(t, s.SetPremiumUntil(3, baseTime.Add(24*time.Hour)))

	// 2 joined before 3, so only the premium bonus can flip the pick.
	require.NoError(t, e.StartSearch(2))
	require.NoError(t, s.Enqueue(2, baseTime.Add(-2*time.Second)))
	require.NoError(t, e.StartSearch(3))
	require.NoError(t, e.StartSearch(1))

	result, err := e.AttemptMatch(1)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.EqualValues(t, 3, result.PartnerID)
}

func TestEarliestJoinedWinsTies(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	mustUser(t, s, 3)

	require.NoError(t, e.StartSearch(2))
	require.NoError(t, s.Enqueue(2, baseTime.Add(-3*time.Second)))
	require.NoError(t, e.StartSearch(3))
	require.NoError(t, s.Enqueue(3, baseTime.Add(-1*time.Second)))
	require.NoError(t, e.StartSearch(1))

	result, err := e.AttemptMatch(1)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.EqualValues(t, 2, result.PartnerID)
}

func TestEndChat(t *testing.T) {
	e, s, tr := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(1))
	_, err := e.AttemptMatch(1)
	require.NoError(t, err)

	partnerID, err := e.EndChat(1, EndOptions{
		NotifyUser:      true,
		NotifyPartner:   true,
		CollectFeedback: true,
		ReasonKey:       "chat_ended",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, partnerID)

	assert.Equal(t, models.StateIdle, mustState(t, s, 1))
	assert.Equal(t, models.StateIdle, mustState(t, s, 2))

	pair, err := s.ActivePair(1)
	require.NoError(t, err)
	assert.Nil(t, pair)

	assert.Equal(t, []string{"chat_ended"}, tr.endReasons(1))
	assert.Equal(t, []string{"chat_ended"}, tr.endReasons(2))

	// Both sides hold a one-shot rating for each other.
	p1, err := s.GetPendingRating(1)
	require.NoError(t, err)
	require.NotNil(t, p1)
	assert.EqualValues(t, 2, p1.TargetID)
	p2, err := s.GetPendingRating(2)
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.EqualValues(t, 1, p2.TargetID)

	// Ending again is a no-op.
	partnerID, err = e.EndChat(1, EndOptions{NotifyUser: true, NotifyPartner: true, ReasonKey: "chat_ended"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, partnerID)
	assert.Equal(t, []string{"chat_ended"}, tr.endReasons(1))
}

func TestEndChatWithoutNotifyLeavesNoPendingRating(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(1))
	_, err := e.AttemptMatch(1)
	require.NoError(t, err)

	_, err = e.EndChat(1, EndOptions{
		NotifyUser:      false,
		NotifyPartner:   true,
		CollectFeedback: true,
		ReasonKey:       "chat_ended",
	})
	require.NoError(t, err)

	p1, err := s.GetPendingRating(1)
	require.NoError(t, err)
	assert.Nil(t, p1, "silent side gets no rating prompt")
	p2, err := s.GetPendingRating(2)
	require.NoError(t, err)
	assert.NotNil(t, p2)
}

func TestMatchWithUnreachablePartnerEndsChat(t *testing.T) {
	e, s, tr := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	tr.unreachable[2] = true

	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(1))

	_, err := e.AttemptMatch(1)
	require.NoError(t, err)

	// The dead side was never told anything, the survivor got the notice
	// and both ended up idle with the pair closed.
	assert.Equal(t, models.StateIdle, mustState(t, s, 1))
	assert.Equal(t, models.StateIdle, mustState(t, s, 2))
	pair, err := s.ActivePair(1)
	require.NoError(t, err)
	assert.Nil(t, pair)
	assert.Contains(t, tr.endReasons(1), "partner_unavailable")
	assert.Empty(t, tr.endReasons(2))
}

func TestCancelAfterMatchCommitted(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(1))
	_, err := e.AttemptMatch(1)
	require.NoError(t, err)

	cancelled, err := e.CancelSearch(2)
	require.NoError(t, err)
	assert.False(t, cancelled, "a committed match cannot be cancelled")
	assert.Equal(t, models.StateChatting, mustState(t, s, 2))
}

func TestSkip(t *testing.T) {
	e, s, tr := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(1))
	_, err := e.AttemptMatch(1)
	require.NoError(t, err)

	partnerID, skipped, cooldown, err := e.Skip(1)
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.EqualValues(t, 2, partnerID)
	assert.Zero(t, cooldown)

	assert.Equal(t, models.StateSearching, mustState(t, s, 1))
	assert.Equal(t, models.StateIdle, mustState(t, s, 2))
	assert.Contains(t, tr.endReasons(2), "chat_skipped")

	u1 := mustUser(t, s, 1)
	assert.Equal(t, baseTime.Add(30*time.Second).Unix(), u1.SkipUntil.Unix())
}

func TestSkipThrottled(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	require.NoError(t, s.SetSkipUntil(1, baseTime.Add(20*time.Second)))

	require.NoError(t, e.StartSearch(2))
	require.NoError(t, e.StartSearch(1))
	_, err := e.AttemptMatch(1)
	require.NoError(t, err)

	partnerID, skipped, cooldown, err := e.Skip(1)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.EqualValues(t, 0, partnerID)
	assert.Equal(t, 20*time.Second, cooldown)
	assert.Equal(t, models.StateChatting, mustState(t, s, 1), "throttled skip leaves the chat running")
}

func TestSkipWithoutChat(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)

	partnerID, skipped, cooldown, err := e.Skip(1)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Zero(t, partnerID)
	assert.Zero(t, cooldown)
}
