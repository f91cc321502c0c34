package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Pair represents a 1-on-1 chat session between two users,
// either active or historical.
type Pair struct {
	// ID is the unique identifier of the pairing (UUID).
	ID string `gorm:"primaryKey"`
	// User1ID is the user who initiated the match attempt.
	User1ID int64 `gorm:"index"`
	// User2ID is the matched candidate.
	User2ID int64 `gorm:"index"`
	// StartedAt is when the pairing was created.
	StartedAt time.Time
	// EndedAt is nil while the chat is active.
	EndedAt *time.Time
	// IsActive indicates whether the chat is currently running.
	// At most one active pair exists per user.
	IsActive bool `gorm:"index"`
}

// BeforeCreate is a GORM hook that mints the pair id if unset.
func (p *Pair) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}

// PartnerOf returns the other member of the pair, or 0 if userID is not a
// member.
func (p *Pair) PartnerOf(userID int64) int64 {
	switch userID {
	case p.User1ID:
		return p.User2ID
	case p.User2ID:
		return p.User1ID
	}
	return 0
}
