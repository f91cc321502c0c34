package models

import "time"

// PendingRating is a one-shot invitation to rate the last chat partner.
// At most one exists per user; it is superseded whenever another chat of
// theirs ends, and cleared on submission.
type PendingRating struct {
	UserID    int64  `gorm:"primaryKey"`
	PairID    string `gorm:"type:text;not null"`
	TargetID  int64  `gorm:"not null"`
	CreatedAt time.Time
}

// ChatFeedback is an append-only feedback record. The unique index on
// (pair, rater) is what makes a rating single-use per session.
type ChatFeedback struct {
	ID        uint   `gorm:"primaryKey"`
	PairID    string `gorm:"type:text;not null;uniqueIndex:idx_pair_rater"`
	RaterID   int64  `gorm:"not null;uniqueIndex:idx_pair_rater"`
	TargetID  int64  `gorm:"not null"`
	Value     int    `gorm:"not null"` // +1 or -1
	CreatedAt time.Time
}
