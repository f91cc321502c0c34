// Package matching is the matchmaking and session-lifecycle engine: the
// candidate scoring algorithm, the pairing/unpairing protocol and the
// post-chat feedback tracker. All queue scanning and pair creation runs
// under a single exclusive lock owned by the Engine; transport calls are
// always made after the lock is released.
package matching

import (
	"log"
	"sync"
	"time"

	"ghostchat/backend/internal/config"
	"ghostchat/backend/internal/interests"
	"ghostchat/backend/internal/models"
	"ghostchat/backend/internal/storage"
)

// Transport delivers engine notifications to users. The boolean return
// reports delivery: false with a nil error means the recipient is
// permanently unreachable (blocked the bot, deactivated). A non-nil error
// is a transient failure and causes no session mutation.
type Transport interface {
	SendMatchFound(userID int64) (bool, error)
	SendChatEnded(userID int64, reasonKey string, offerRating bool) (bool, error)
}

// EndOptions controls one EndChat call.
type EndOptions struct {
	// NotifyUser delivers the end-of-chat notice to the user who triggered
	// the end. Kept false when banning, so the banned side is not tipped off.
	NotifyUser bool
	// NotifyPartner delivers the notice to the other member. Kept false
	// when the partner is already known to be unreachable.
	NotifyPartner bool
	// CollectFeedback creates a pending rating for each notified party.
	CollectFeedback bool
	// ReasonKey is the localization key of the end-of-chat notice.
	ReasonKey string
}

// MatchResult names the two members of a freshly created pair.
type MatchResult struct {
	PairID    string
	UserID    int64
	PartnerID int64
}

// Engine owns the matching critical section and the pairing lifecycle.
type Engine struct {
	mu sync.Mutex
	// ratingMu serializes the check-then-act region of SubmitRating.
	ratingMu sync.Mutex

	Storage   storage.Storage
	Transport Transport

	SoftExpandWindow time.Duration
	SkipCooldown     time.Duration

	// Now is the engine clock; replaced in tests.
	Now func() time.Time
}

// NewEngine wires the engine with its tunables.
func NewEngine(s storage.Storage, t Transport, cfg *config.Config) *Engine {
	return &Engine{
		Storage:          s,
		Transport:        t,
		SoftExpandWindow: cfg.SoftExpandWindow,
		SkipCooldown:     cfg.SkipCooldown,
		Now:              time.Now,
	}
}

// StartSearch moves the user to searching and puts them in the queue.
// Re-entering refreshes the queue position.
func (e *Engine) StartSearch(userID int64) error {
	if err := e.Storage.SetState(userID, models.StateSearching); err != nil {
		return err
	}
	return e.Storage.Enqueue(userID, e.Now())
}

// CancelSearch removes the user from the queue if no match has committed
// yet. Runs under the matching lock, so cancellation and a concurrent
// match attempt cannot both succeed; the loser observes the post-state and
// reports false.
func (e *Engine) CancelSearch(userID int64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.Storage.GetState(userID)
	if err != nil {
		return false, err
	}
	if state != models.StateSearching {
		return false, nil
	}
	if err := e.Storage.Dequeue(userID); err != nil {
		return false, err
	}
	return true, e.Storage.SetState(userID, models.StateIdle)
}

// AttemptMatch tries to pair the user with the best queue candidate.
// A nil result with a nil error means "no match yet" and is normal
// operation while the queue is thin. On success both members have been
// moved to chatting and notified; if one side turns out to be unreachable
// the chat is immediately ended for the other.
func (e *Engine) AttemptMatch(userID int64) (*MatchResult, error) {
	now := e.Now()

	e.mu.Lock()
	result, err := e.matchLocked(userID, now)
	e.mu.Unlock()
	if err != nil || result == nil {
		return nil, err
	}

	e.publish(models.Event{
		Type:      models.EventMatchCreated,
		UserID:    result.UserID,
		PartnerID: result.PartnerID,
		PairID:    result.PairID,
		At:        now,
	})

	// Notification sends happen outside the lock. A transient transport
	// error leaves the pairing in place; an unreachable recipient ends the
	// chat for the reachable side without notifying the dead one.
	sentUser := e.notifyMatch(result.UserID)
	sentPartner := e.notifyMatch(result.PartnerID)
	if sentUser && sentPartner {
		return result, nil
	}

	survivor := result.UserID
	if !sentUser {
		survivor = result.PartnerID
	}
	if _, err := e.EndChat(survivor, EndOptions{
		NotifyUser:    true,
		NotifyPartner: false,
		ReasonKey:     "partner_unavailable",
	}); err != nil {
		return nil, err
	}
	return nil, nil
}

func (e *Engine) notifyMatch(userID int64) bool {
	delivered, err := e.Transport.SendMatchFound(userID)
	if err != nil {
		log.Printf("WARNING: Transient send failure notifying %d of match: %v", userID, err)
		return true
	}
	return delivered
}

// matchLocked is the critical section: re-check state, scan candidates,
// commit the pairing. Caller holds e.mu.
func (e *Engine) matchLocked(userID int64, now time.Time) (*MatchResult, error) {
	// A concurrent transition may have raced us here; abort silently.
	state, err := e.Storage.GetState(userID)
	if err != nil {
		return nil, err
	}
	if state != models.StateSearching {
		return nil, nil
	}

	user, err := e.Storage.GetUser(userID)
	if err != nil || user == nil {
		return nil, err
	}

	userOnly := user.StrictInterest(now)
	userInterests := []string(user.Interests)

	// Strict mode with no declared interests can never be satisfied.
	if userOnly && len(userInterests) == 0 {
		return nil, nil
	}

	joinedAt, err := e.Storage.QueueJoinedAt(userID)
	if err != nil {
		return nil, err
	}
	userWait := waitSince(joinedAt, now)
	userNeeds := e.needsInterestMatch(userOnly, userInterests, userWait)

	history, err := e.Storage.PartnerHistory(userID)
	if err != nil {
		return nil, err
	}

	candidates, err := e.Storage.Candidates(userID, now)
	if err != nil {
		return nil, err
	}

	best := e.pickCandidate(userInterests, userNeeds, history, candidates, now)
	if best == nil {
		return nil, nil
	}

	pair, err := e.Storage.CreatePairTx(userID, best.UserID, now)
	if err != nil {
		return nil, err
	}
	if err := e.Storage.Dequeue(userID); err != nil {
		return nil, err
	}
	if err := e.Storage.Dequeue(best.UserID); err != nil {
		return nil, err
	}

	// A new chat retires any rating prompt left over from the previous one.
	if err := e.Storage.DeletePendingRating(userID); err != nil {
		return nil, err
	}
	if err := e.Storage.DeletePendingRating(best.UserID); err != nil {
		return nil, err
	}

	return &MatchResult{PairID: pair.ID, UserID: userID, PartnerID: best.UserID}, nil
}

// pickCandidate scans the queue in join order, scoring each eligible
// candidate; ties keep the earlier-joined one. When the scan yields
// nothing and the requester has no active interest requirement, a fallback
// pass accepts any non-strict candidate, preferring a fresh partner.
func (e *Engine) pickCandidate(
	userInterests []string,
	userNeeds bool,
	history map[int64]struct{},
	candidates []models.Candidate,
	now time.Time,
) *models.Candidate {
	var best *models.Candidate
	bestScore := -1

	for i := range candidates {
		cand := &candidates[i]
		candWait := waitSince(cand.JoinedAt, now)
		candOnly := cand.OnlyInterest && cand.PremiumUntil.After(now)
		candNeeds := e.needsInterestMatch(candOnly, cand.Interests, candWait)

		overlap := interests.Overlap(userInterests, cand.Interests)
		if !overlap && (userNeeds || candNeeds) {
			// Neither party's constraint can be satisfied.
			continue
		}

		_, known := history[cand.UserID]
		score := candidateScore(overlap, !known, cand.PremiumUntil.After(now), candWait)
		if score > bestScore {
			best, bestScore = cand, score
		}
	}
	if best != nil {
		return best
	}

	// Strict users never fall back.
	if userNeeds {
		return nil
	}

	var anyEligible *models.Candidate
	for i := range candidates {
		cand := &candidates[i]
		candWait := waitSince(cand.JoinedAt, now)
		candOnly := cand.OnlyInterest && cand.PremiumUntil.After(now)
		if e.needsInterestMatch(candOnly, cand.Interests, candWait) {
			continue
		}
		if _, known := history[cand.UserID]; !known {
			return cand
		}
		if anyEligible == nil {
			anyEligible = cand
		}
	}
	return anyEligible
}

// needsInterestMatch implements graceful relaxation: a user with declared
// interests is held to a strict match only inside the soft-expand window,
// unless they run in only-with-interest mode.
func (e *Engine) needsInterestMatch(strict bool, declared []string, wait time.Duration) bool {
	return strict || (len(declared) > 0 && wait < e.SoftExpandWindow)
}

func candidateScore(hasOverlap, fresh, premium bool, wait time.Duration) int {
	score := 0
	if hasOverlap {
		score += config.ScoreInterestOverlap
	}
	if fresh {
		score += config.ScoreFreshPartner
	}
	if premium {
		score += config.ScorePremiumPartner
	}
	if wait > config.WaitBonusCap {
		wait = config.WaitBonusCap
	}
	score += int(wait / config.WaitBonusStep)
	return score
}

func waitSince(joinedAt, now time.Time) time.Duration {
	if joinedAt.IsZero() || joinedAt.After(now) {
		return 0
	}
	return now.Sub(joinedAt)
}

// EndChat closes the user's active pairing, whatever triggered it:
// explicit end, skip, moderation ban or transport failure. Idempotent; a
// user with no active pairing is a no-op. Returns the partner id (0 when
// there was no pairing) so callers can chain follow-up behavior.
//
// Steps 1-4 (close pair, idle both members, supersede stale pending
// ratings, create fresh ones) are authoritative; the notices in step 5 are
// best-effort and never roll anything back.
func (e *Engine) EndChat(userID int64, opts EndOptions) (int64, error) {
	now := e.Now()

	pair, err := e.Storage.ActivePair(userID)
	if err != nil {
		return 0, err
	}
	if pair == nil {
		return 0, nil
	}
	partnerID := pair.PartnerOf(userID)

	if err := e.Storage.EndPair(pair.ID, now); err != nil {
		return 0, err
	}
	if err := e.Storage.SetState(userID, models.StateIdle); err != nil {
		return 0, err
	}
	if err := e.Storage.SetState(partnerID, models.StateIdle); err != nil {
		return 0, err
	}

	// A new chat end supersedes an unrated previous one.
	if err := e.Storage.DeletePendingRating(userID); err != nil {
		return 0, err
	}
	if err := e.Storage.DeletePendingRating(partnerID); err != nil {
		return 0, err
	}

	if opts.CollectFeedback {
		if opts.NotifyUser {
			if err := e.Storage.UpsertPendingRating(userID, pair.ID, partnerID, now); err != nil {
				return 0, err
			}
		}
		if opts.NotifyPartner {
			if err := e.Storage.UpsertPendingRating(partnerID, pair.ID, userID, now); err != nil {
				return 0, err
			}
		}
	}

	e.publish(models.Event{
		Type:      models.EventChatEnded,
		UserID:    userID,
		PartnerID: partnerID,
		PairID:    pair.ID,
		Reason:    opts.ReasonKey,
		At:        now,
	})

	if opts.NotifyUser {
		e.notifyEnded(userID, opts)
	}
	if opts.NotifyPartner {
		e.notifyEnded(partnerID, opts)
	}
	return partnerID, nil
}

func (e *Engine) notifyEnded(userID int64, opts EndOptions) {
	if _, err := e.Transport.SendChatEnded(userID, opts.ReasonKey, opts.CollectFeedback); err != nil {
		log.Printf("WARNING: Failed to deliver chat-end notice to %d: %v", userID, err)
	}
}

// Skip ends the current chat and immediately re-enters the queue, subject
// to the skip cooldown. Returns the remaining cooldown when throttled
// (partner 0, skipped false in that case).
func (e *Engine) Skip(userID int64) (partnerID int64, skipped bool, cooldown time.Duration, err error) {
	now := e.Now()

	user, err := e.Storage.GetOrCreateUser(userID)
	if err != nil {
		return 0, false, 0, err
	}
	if user.SkipThrottled(now) {
		return 0, false, user.SkipUntil.Sub(now), nil
	}

	partnerID, err = e.EndChat(userID, EndOptions{
		NotifyUser:      true,
		NotifyPartner:   true,
		CollectFeedback: true,
		ReasonKey:       "chat_skipped",
	})
	if err != nil {
		return 0, false, 0, err
	}
	if partnerID == 0 {
		return 0, false, 0, nil
	}

	if err := e.Storage.SetSkipUntil(userID, now.Add(e.SkipCooldown)); err != nil {
		return 0, false, 0, err
	}
	if err := e.StartSearch(userID); err != nil {
		return 0, false, 0, err
	}
	return partnerID, true, 0, nil
}

func (e *Engine) publish(event models.Event) {
	if err := e.Storage.PublishEvent(event); err != nil {
		log.Printf("WARNING: Failed to publish %s event: %v", event.Type, err)
	}
}
