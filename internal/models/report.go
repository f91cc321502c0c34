package models

import "time"

const (
	ReportStatusNew       = "new"
	ReportStatusResolved  = "resolved"
	ReportStatusDismissed = "dismissed"
)

// Report is a user complaint about their current chat partner.
type Report struct {
	ID         uint `gorm:"primaryKey"`
	ReporterID int64
	ReportedID int64 `gorm:"index"`
	Reason     string
	CreatedAt  time.Time
	Status     string `gorm:"type:text;not null;default:'new'"`
	ResolvedAt *time.Time
	ResolvedBy *int64
}

// Incident is an append-only audit record of notable events: reports,
// bans, payments, trial and promo activations.
type Incident struct {
	ID        uint `gorm:"primaryKey"`
	ActorID   *int64
	TargetID  *int64
	Type      string `gorm:"type:text;not null"`
	Payload   string
	CreatedAt time.Time
}

// PromoUse records a redeemed promo code; the unique index makes each code
// single-use per user.
type PromoUse struct {
	ID     uint   `gorm:"primaryKey"`
	UserID int64  `gorm:"uniqueIndex:idx_user_code"`
	Code   string `gorm:"type:text;not null;uniqueIndex:idx_user_code"`
	UsedAt time.Time
}
