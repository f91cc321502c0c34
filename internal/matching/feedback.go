package matching

import "errors"

// ErrInvalidRating is returned for rating values outside {+1, -1}.
// Rejected at the boundary; rejected calls have no side effects.
var ErrInvalidRating = errors.New("rating value must be +1 or -1")

// SubmitRating records the one-shot partner rating for the rater's last
// ended chat. A nil result with a nil error means the rating is
// unavailable: no pending invitation, or the session was already rated
// (a retried tap). The successful path commits the feedback record, the
// target's score increment and the pending-entry removal atomically.
func (e *Engine) SubmitRating(raterID int64, value int) (targetID int64, ok bool, err error) {
	if value != 1 && value != -1 {
		return 0, false, ErrInvalidRating
	}

	// Own check-then-act region: a duplicate submission racing itself must
	// not double-count.
	e.ratingMu.Lock()
	defer e.ratingMu.Unlock()

	pending, err := e.Storage.GetPendingRating(raterID)
	if err != nil {
		return 0, false, err
	}
	if pending == nil {
		return 0, false, nil
	}

	exists, err := e.Storage.FeedbackExists(pending.PairID, raterID)
	if err != nil {
		return 0, false, err
	}
	if exists {
		// Already rated; drop the stale invitation.
		if err := e.Storage.DeletePendingRating(raterID); err != nil {
			return 0, false, err
		}
		return 0, false, nil
	}

	if err := e.Storage.SubmitFeedbackTx(pending, value, e.Now()); err != nil {
		return 0, false, err
	}
	return pending.TargetID, true, nil
}
