package models

import (
	"time"

	"github.com/lib/pq" // Required for pq.StringArray
)

// State describes where a user currently is in the matchmaking lifecycle.
// A user is always in exactly one state; transitions happen through the
// matching engine or an explicit user action.
type State string

const (
	StateIdle      State = "idle"
	StateSearching State = "searching"
	StateChatting  State = "chatting"
)

// User represents one account in the system. Created lazily on first
// contact, never hard-deleted, mutated in place for the lifetime of the
// account.
//
// All *Until fields follow the lazy-expiry rule: expiry is evaluated at
// read time, never swept. A zero timestamp means "not set".
type User struct {
	// ID is the Telegram user id.
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time

	State State `gorm:"type:text;not null;default:'idle'"`

	// IsBanned is the permanent ban flag; BannedUntil covers temporary bans.
	IsBanned    bool
	BannedUntil time.Time
	MutedUntil  time.Time

	// Rating is the accumulated partner feedback score.
	Rating     int
	ChatsCount int

	Interests pq.StringArray `gorm:"type:text[]"`
	// OnlyInterest requires partners to share an interest; honored only
	// while premium is active.
	OnlyInterest bool

	PremiumUntil time.Time
	TrialUsed    bool

	// SkipUntil throttles repeated skip actions.
	SkipUntil time.Time

	AutoSearch    bool
	ContentFilter bool   `gorm:"default:true"`
	Lang          string `gorm:"type:text;not null;default:'ru'"`
}

// activeUntil reports whether an expiry timestamp is currently in force.
func activeUntil(until, now time.Time) bool {
	return !until.IsZero() && until.After(now)
}

// Banned reports whether the user is banned at the given instant, either
// permanently or by an unexpired temporary ban.
func (u *User) Banned(now time.Time) bool {
	return u.IsBanned || activeUntil(u.BannedUntil, now)
}

// Muted reports whether message sending is currently blocked for the user.
func (u *User) Muted(now time.Time) bool {
	return activeUntil(u.MutedUntil, now)
}

// Premium reports whether the user holds active premium.
func (u *User) Premium(now time.Time) bool {
	return activeUntil(u.PremiumUntil, now)
}

// StrictInterest reports whether the only-with-interest requirement is in
// force. The flag is stored regardless of subscription but only honored
// while premium is active.
func (u *User) StrictInterest(now time.Time) bool {
	return u.OnlyInterest && u.Premium(now)
}

// SkipThrottled reports whether the user is still inside the skip cooldown.
func (u *User) SkipThrottled(now time.Time) bool {
	return activeUntil(u.SkipUntil, now)
}
