package models

import "time"

// Candidate is the typed view of one queue entry produced by the storage
// layer for the matcher. It is a read snapshot, not a mutable record.
type Candidate struct {
	UserID       int64     `json:"user_id"`
	JoinedAt     time.Time `json:"joined_at"`
	Interests    []string  `json:"interests"`
	OnlyInterest bool      `json:"only_interest"`
	PremiumUntil time.Time `json:"premium_until"`
}

// Event types published on the engine event bus.
const (
	EventMatchCreated = "match_created"
	EventChatEnded    = "chat_ended"
	EventBanApplied   = "ban_applied"
	EventReportFiled  = "report_filed"
)

// Event is one engine lifecycle notification, consumed by the ops feed.
type Event struct {
	Type      string    `json:"type"`
	UserID    int64     `json:"user_id,omitempty"`
	PartnerID int64     `json:"partner_id,omitempty"`
	PairID    string    `json:"pair_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Stats is the aggregate snapshot served to admins.
type Stats struct {
	Users       int64 `json:"users"`
	ActiveChats int64 `json:"active_chats"`
	Queue       int64 `json:"queue"`
	Reports     int64 `json:"reports"`
	Banned      int64 `json:"banned"`
	TempBanned  int64 `json:"temp_banned"`
}
