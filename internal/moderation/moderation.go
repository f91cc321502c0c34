// Package moderation is the ban/mute overlay consulted before every
// user-facing action, plus the report intake and triage operations.
//
// Restrictions use lazy expiry: a *Until timestamp in the past is treated
// as inactive on read and never swept, so stale values are harmless.
package moderation

import (
	"time"

	"ghostchat/backend/internal/matching"
	"ghostchat/backend/internal/models"
	"ghostchat/backend/internal/storage"
)

// Service handles restriction checks and mutations.
type Service struct {
	Storage storage.Storage
	Engine  *matching.Engine
	Now     func() time.Time
}

// NewService creates the moderation service.
func NewService(s storage.Storage, engine *matching.Engine) *Service {
	return &Service{Storage: s, Engine: engine, Now: time.Now}
}

// IsBanned reports an active permanent or unexpired temporary ban.
func (s *Service) IsBanned(userID int64) (bool, error) {
	user, err := s.Storage.GetUser(userID)
	if err != nil || user == nil {
		return false, err
	}
	return user.Banned(s.Now()), nil
}

// IsMuted reports an unexpired mute.
func (s *Service) IsMuted(userID int64) (bool, error) {
	user, err := s.Storage.GetUser(userID)
	if err != nil || user == nil {
		return false, err
	}
	return user.Muted(s.Now()), nil
}

// Ban applies a permanent ban. TempBan applies one until now+duration.
// Either way the user is pulled out of the queue, idled, and any active
// chat is force-ended without telling the banned side why.
func (s *Service) Ban(userID int64, actorID int64) error {
	if err := s.Storage.SetBanned(userID, true); err != nil {
		return err
	}
	return s.enforceBan(userID, actorID, "permanent")
}

func (s *Service) TempBan(userID int64, duration time.Duration, actorID int64) error {
	until := s.Now().Add(duration)
	if err := s.Storage.SetBannedUntil(userID, until); err != nil {
		return err
	}
	return s.enforceBan(userID, actorID, until.UTC().Format(time.RFC3339))
}

func (s *Service) enforceBan(userID, actorID int64, payload string) error {
	if err := s.Storage.Dequeue(userID); err != nil {
		return err
	}
	if err := s.Storage.SetState(userID, models.StateIdle); err != nil {
		return err
	}
	// The banned user is not notified; the partner is.
	if _, err := s.Engine.EndChat(userID, matching.EndOptions{
		NotifyUser:    false,
		NotifyPartner: true,
		ReasonKey:     "chat_ended",
	}); err != nil {
		return err
	}
	now := s.Now()
	if err := s.Storage.AddIncident(&actorID, &userID, "ban", payload, now); err != nil {
		return err
	}
	return s.Storage.PublishEvent(models.Event{
		Type:   models.EventBanApplied,
		UserID: userID,
		Reason: payload,
		At:     now,
	})
}

// Unban clears both the permanent flag and any temporary ban.
func (s *Service) Unban(userID int64, actorID int64) error {
	if err := s.Storage.SetBanned(userID, false); err != nil {
		return err
	}
	if err := s.Storage.SetBannedUntil(userID, time.Time{}); err != nil {
		return err
	}
	if err := s.Storage.SetState(userID, models.StateIdle); err != nil {
		return err
	}
	return s.Storage.AddIncident(&actorID, &userID, "unban", "", s.Now())
}

// Mute blocks message sending until now+duration; browsing stays usable.
func (s *Service) Mute(userID int64, duration time.Duration, actorID int64) error {
	until := s.Now().Add(duration)
	if err := s.Storage.SetMutedUntil(userID, until); err != nil {
		return err
	}
	return s.Storage.AddIncident(&actorID, &userID, "mute", until.UTC().Format(time.RFC3339), s.Now())
}

func (s *Service) Unmute(userID int64, actorID int64) error {
	if err := s.Storage.SetMutedUntil(userID, time.Time{}); err != nil {
		return err
	}
	return s.Storage.AddIncident(&actorID, &userID, "unmute", "", s.Now())
}

// SubmitReport files a complaint about the reporter's current partner and
// logs the incident.
func (s *Service) SubmitReport(reporterID, reportedID int64, reason string) error {
	now := s.Now()
	if err := s.Storage.AddReport(reporterID, reportedID, reason, now); err != nil {
		return err
	}
	if err := s.Storage.AddIncident(&reporterID, &reportedID, "report", reason, now); err != nil {
		return err
	}
	return s.Storage.PublishEvent(models.Event{
		Type:      models.EventReportFiled,
		UserID:    reporterID,
		PartnerID: reportedID,
		Reason:    reason,
		At:        now,
	})
}

// NextOpenReport returns the oldest unresolved report, or nil.
func (s *Service) NextOpenReport() (*models.Report, error) {
	return s.Storage.NextOpenReport()
}

// DismissReport closes a report without action.
func (s *Service) DismissReport(reportID uint, resolverID int64) error {
	return s.Storage.ResolveReport(reportID, models.ReportStatusDismissed, resolverID, s.Now())
}

// ResolveReportWithTempBan closes a report and temp-bans the reported user.
func (s *Service) ResolveReportWithTempBan(reportID uint, resolverID int64, duration time.Duration) error {
	report, err := s.Storage.GetReport(reportID)
	if err != nil {
		return err
	}
	if report == nil {
		return nil
	}
	if err := s.TempBan(report.ReportedID, duration, resolverID); err != nil {
		return err
	}
	return s.Storage.ResolveReport(reportID, models.ReportStatusResolved, resolverID, s.Now())
}
