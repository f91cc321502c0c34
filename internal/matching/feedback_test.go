package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostchat/backend/internal/models"
)

// endRatedChat pairs the two users and ends the chat with feedback
// collection on, leaving both holding a pending rating.
func endRatedChat(t *testing.T, e *Engine, user1, user2 int64) {
	t.Helper()
	require.NoError(t, e.StartSearch(user2))
	require.NoError(t, e.StartSearch(user1))
	_, err := e.AttemptMatch(user1)
	require.NoError(t, err)
	_, err = e.EndChat(user1, EndOptions{
		NotifyUser:      true,
		NotifyPartner:   true,
		CollectFeedback: true,
		ReasonKey:       "chat_ended",
	})
	require.NoError(t, err)
}

func TestSubmitRatingInvalidValue(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, _, err := e.SubmitRating(1, 0)
	assert.ErrorIs(t, err, ErrInvalidRating)
	_, _, err = e.SubmitRating(1, 2)
	assert.ErrorIs(t, err, ErrInvalidRating)
}

func TestSubmitRatingWithoutPending(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)

	targetID, ok, err := e.SubmitRating(1, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, targetID)
}

func TestSubmitRatingSingleUse(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	endRatedChat(t, e, 1, 2)

	targetID, ok, err := e.SubmitRating(1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 2, targetID)

	u2 := mustUser(t, s, 2)
	assert.Equal(t, 1, u2.Rating)

	// The prompt is consumed, a second press changes nothing.
	_, ok, err = e.SubmitRating(1, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	u2 = mustUser(t, s, 2)
	assert.Equal(t, 1, u2.Rating)
}

func TestSubmitNegativeRating(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	endRatedChat(t, e, 1, 2)

	_, ok, err := e.SubmitRating(2, -1)
	require.NoError(t, err)
	assert.True(t, ok)

	u1 := mustUser(t, s, 1)
	assert.Equal(t, -1, u1.Rating)
}

func TestRatingSurvivesPartnerMovingOn(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	mustUser(t, s, 3)
	endRatedChat(t, e, 1, 2)

	// User 1 finds a new partner while user 2 still holds the old prompt.
	require.NoError(t, e.StartSearch(3))
	require.NoError(t, e.StartSearch(1))
	_, err := e.AttemptMatch(1)
	require.NoError(t, err)
	assert.Equal(t, models.StateChatting, mustState(t, s, 1))

	targetID, ok, err := e.SubmitRating(2, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, targetID)
}

func TestNewChatStartRetiresOldPrompt(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	mustUser(t, s, 3)
	endRatedChat(t, e, 1, 2)

	// User 1 pairs up again without rating; the stale 1->2 prompt expires
	// the moment the new chat starts.
	require.NoError(t, e.StartSearch(3))
	require.NoError(t, e.StartSearch(1))
	_, err := e.AttemptMatch(1)
	require.NoError(t, err)
	assert.Equal(t, models.StateChatting, mustState(t, s, 1))

	pending, err := s.GetPendingRating(1)
	require.NoError(t, err)
	assert.Nil(t, pending)

	_, ok, err := e.SubmitRating(1, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	u2 := mustUser(t, s, 2)
	assert.Equal(t, 0, u2.Rating)
}

func TestNewChatEndSupersedesOldPrompt(t *testing.T) {
	e, s, _ := newTestEngine(t)
	mustUser(t, s, 1)
	mustUser(t, s, 2)
	mustUser(t, s, 3)
	endRatedChat(t, e, 1, 2)

	// User 1 chats with 3 and that chat ends too; the old 1->2 prompt is
	// replaced by the fresh 1->3 one.
	endRatedChat(t, e, 1, 3)

	pending, err := s.GetPendingRating(1)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.EqualValues(t, 3, pending.TargetID)

	targetID, ok, err := e.SubmitRating(1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 3, targetID)
}
