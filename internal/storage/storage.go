// Package storage is the persistence layer: user sessions, pairs and
// feedback live in PostgreSQL via GORM, the search queue and the engine
// event bus live in Redis.
package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"ghostchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Storage interface {
	// Users
	GetOrCreateUser(userID int64) (*models.User, error)
	GetUser(userID int64) (*models.User, error)
	GetState(userID int64) (models.State, error)
	SetState(userID int64, state models.State) error
	SetBanned(userID int64, banned bool) error
	SetBannedUntil(userID int64, until time.Time) error
	SetMutedUntil(userID int64, until time.Time) error
	SetInterests(userID int64, interests []string) error
	SetOnlyInterest(userID int64, value bool) error
	SetPremiumUntil(userID int64, until time.Time) error
	SetTrialUsed(userID int64, value bool) error
	SetSkipUntil(userID int64, until time.Time) error
	SetAutoSearch(userID int64, value bool) error
	SetContentFilter(userID int64, value bool) error
	SetLang(userID int64, lang string) error
	ActiveRestrictions(userID int64, now time.Time) (bannedUntil, mutedUntil time.Time, err error)

	// Queue
	Enqueue(userID int64, at time.Time) error
	Dequeue(userID int64) error
	QueueSize() (int64, error)
	QueuePosition(userID int64) (int64, error)
	QueueJoinedAt(userID int64) (time.Time, error)
	Candidates(excludeUserID int64, now time.Time) ([]models.Candidate, error)

	// Pairs
	CreatePairTx(user1ID, user2ID int64, now time.Time) (*models.Pair, error)
	ActivePair(userID int64) (*models.Pair, error)
	EndPair(pairID string, now time.Time) error
	PartnerHistory(userID int64) (map[int64]struct{}, error)

	// Feedback
	UpsertPendingRating(userID int64, pairID string, targetID int64, now time.Time) error
	GetPendingRating(userID int64) (*models.PendingRating, error)
	DeletePendingRating(userID int64) error
	FeedbackExists(pairID string, raterID int64) (bool, error)
	SubmitFeedbackTx(pending *models.PendingRating, value int, now time.Time) error

	// Moderation
	AddReport(reporterID, reportedID int64, reason string, now time.Time) error
	NextOpenReport() (*models.Report, error)
	GetReport(id uint) (*models.Report, error)
	ResolveReport(id uint, status string, resolvedBy int64, now time.Time) error
	AddIncident(actorID, targetID *int64, kind, payload string, now time.Time) error

	// Premium
	AddPromoUse(userID int64, code string, now time.Time) error
	HasUsedPromo(userID int64, code string) (bool, error)

	Stats(now time.Time) (*models.Stats, error)
	ActiveUserIDs(now time.Time) ([]int64, error)

	PublishEvent(event models.Event) error
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewService constructs the storage service over an open DB handle and a
// Redis client.
func NewService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// Migrate creates/updates the schema for every model.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(
		&models.User{},
		&models.Pair{},
		&models.PendingRating{},
		&models.ChatFeedback{},
		&models.Report{},
		&models.Incident{},
		&models.PromoUse{},
	)
}

// GetOrCreateUser returns the user record, creating a fresh idle one on
// first contact. Idempotent.
func (s *Service) GetOrCreateUser(userID int64) (*models.User, error) {
	user := models.User{ID: userID}
	result := s.DB.Where("id = ?", userID).
		Attrs(models.User{State: models.StateIdle, ContentFilter: true, Lang: "ru"}).
		FirstOrCreate(&user)
	if result.Error != nil {
		log.Printf("ERROR: Failed to get/create user %d: %v", userID, result.Error)
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("INFO: New user %d saved to database.", userID)
	}
	return &user, nil
}

// GetUser returns the user record, or (nil, nil) if it does not exist.
func (s *Service) GetUser(userID int64) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetState(userID int64) (models.State, error) {
	user, err := s.GetUser(userID)
	if err != nil || user == nil {
		return "", err
	}
	return user.State, nil
}

func (s *Service) SetState(userID int64, state models.State) error {
	return s.updateUserColumn(userID, "state", state)
}

func (s *Service) SetBanned(userID int64, banned bool) error {
	return s.updateUserColumn(userID, "is_banned", banned)
}

func (s *Service) SetBannedUntil(userID int64, until time.Time) error {
	return s.updateUserColumn(userID, "banned_until", until)
}

func (s *Service) SetMutedUntil(userID int64, until time.Time) error {
	return s.updateUserColumn(userID, "muted_until", until)
}

func (s *Service) SetInterests(userID int64, interests []string) error {
	return s.updateUserColumn(userID, "interests", pqArray(interests))
}

func (s *Service) SetOnlyInterest(userID int64, value bool) error {
	return s.updateUserColumn(userID, "only_interest", value)
}

func (s *Service) SetPremiumUntil(userID int64, until time.Time) error {
	return s.updateUserColumn(userID, "premium_until", until)
}

func (s *Service) SetTrialUsed(userID int64, value bool) error {
	return s.updateUserColumn(userID, "trial_used", value)
}

func (s *Service) SetSkipUntil(userID int64, until time.Time) error {
	return s.updateUserColumn(userID, "skip_until", until)
}

func (s *Service) SetAutoSearch(userID int64, value bool) error {
	return s.updateUserColumn(userID, "auto_search", value)
}

func (s *Service) SetContentFilter(userID int64, value bool) error {
	return s.updateUserColumn(userID, "content_filter", value)
}

func (s *Service) SetLang(userID int64, lang string) error {
	return s.updateUserColumn(userID, "lang", lang)
}

func (s *Service) updateUserColumn(userID int64, column string, value interface{}) error {
	return s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn(column, value).Error
}

// ActiveRestrictions returns the ban/mute expiries still in force, applying
// the lazy-expiry rule: past timestamps are reported as zero, not cleared.
func (s *Service) ActiveRestrictions(userID int64, now time.Time) (time.Time, time.Time, error) {
	user, err := s.GetUser(userID)
	if err != nil || user == nil {
		return time.Time{}, time.Time{}, err
	}
	banned, muted := user.BannedUntil, user.MutedUntil
	if !banned.After(now) {
		banned = time.Time{}
	}
	if !muted.After(now) {
		muted = time.Time{}
	}
	return banned, muted, nil
}

// CreatePairTx opens an active pair: inserts the pair record, moves both
// members to chatting and increments both chat counters in one DB
// transaction. Queue removal is the caller's job (it lives in Redis).
func (s *Service) CreatePairTx(user1ID, user2ID int64, now time.Time) (*models.Pair, error) {
	pair := &models.Pair{
		User1ID:   user1ID,
		User2ID:   user2ID,
		StartedAt: now,
		IsActive:  true,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(pair).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).
			Where("id IN ?", []int64{user1ID, user2ID}).
			UpdateColumn("state", models.StateChatting).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id IN ?", []int64{user1ID, user2ID}).
			UpdateColumn("chats_count", gorm.Expr("chats_count + 1")).Error
	})
	if err != nil {
		log.Printf("ERROR: Failed to create pair %d/%d: %v", user1ID, user2ID, err)
		return nil, err
	}
	return pair, nil
}

// ActivePair returns the active pair the user is a member of, or
// (nil, nil) when there is none.
func (s *Service) ActivePair(userID int64) (*models.Pair, error) {
	var pair models.Pair
	err := s.DB.Where("is_active = ?", true).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		First(&pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Printf("ERROR: Failed to find active pair for user %d: %v", userID, err)
		return nil, err
	}
	return &pair, nil
}

// EndPair closes the pair, setting IsActive = false and EndedAt.
func (s *Service) EndPair(pairID string, now time.Time) error {
	return s.DB.Model(&models.Pair{}).
		Where("id = ?", pairID).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  now,
		}).Error
}

// PartnerHistory returns the set of every user this user has ever been
// paired with, active or not.
func (s *Service) PartnerHistory(userID int64) (map[int64]struct{}, error) {
	var pairs []models.Pair
	if err := s.DB.Where("user1_id = ? OR user2_id = ?", userID, userID).
		Find(&pairs).Error; err != nil {
		return nil, err
	}
	history := make(map[int64]struct{}, len(pairs))
	for _, p := range pairs {
		if partner := p.PartnerOf(userID); partner != 0 {
			history[partner] = struct{}{}
		}
	}
	return history, nil
}

// UpsertPendingRating replaces any previous pending rating for the user; a
// new chat end supersedes an unrated older one.
func (s *Service) UpsertPendingRating(userID int64, pairID string, targetID int64, now time.Time) error {
	return s.DB.Save(&models.PendingRating{
		UserID:    userID,
		PairID:    pairID,
		TargetID:  targetID,
		CreatedAt: now,
	}).Error
}

// GetPendingRating returns the user's pending rating, or (nil, nil) when
// there is none.
func (s *Service) GetPendingRating(userID int64) (*models.PendingRating, error) {
	var pending models.PendingRating
	err := s.DB.First(&pending, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

func (s *Service) DeletePendingRating(userID int64) error {
	return s.DB.Delete(&models.PendingRating{}, "user_id = ?", userID).Error
}

// FeedbackExists reports whether the session was already rated by this
// rater.
func (s *Service) FeedbackExists(pairID string, raterID int64) (bool, error) {
	var count int64
	err := s.DB.Model(&models.ChatFeedback{}).
		Where("pair_id = ? AND rater_id = ?", pairID, raterID).
		Count(&count).Error
	return count > 0, err
}

// SubmitFeedbackTx commits a rating: inserts the feedback record,
// increments the target's rating and deletes the pending entry. All three
// effects commit together or not at all.
func (s *Service) SubmitFeedbackTx(pending *models.PendingRating, value int, now time.Time) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		record := models.ChatFeedback{
			PairID:    pending.PairID,
			RaterID:   pending.UserID,
			TargetID:  pending.TargetID,
			Value:     value,
			CreatedAt: now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).
			Where("id = ?", pending.TargetID).
			UpdateColumn("rating", gorm.Expr("rating + ?", value)).Error; err != nil {
			return err
		}
		return tx.Delete(&models.PendingRating{}, "user_id = ?", pending.UserID).Error
	})
}

func (s *Service) AddReport(reporterID, reportedID int64, reason string, now time.Time) error {
	report := models.Report{
		ReporterID: reporterID,
		ReportedID: reportedID,
		Reason:     reason,
		CreatedAt:  now,
		Status:     models.ReportStatusNew,
	}
	if err := s.DB.Create(&report).Error; err != nil {
		log.Printf("ERROR: Failed to save report from %d about %d: %v", reporterID, reportedID, err)
		return err
	}
	return nil
}

// NextOpenReport returns the oldest unresolved report, or (nil, nil).
func (s *Service) NextOpenReport() (*models.Report, error) {
	var report models.Report
	err := s.DB.Where("status = ?", models.ReportStatusNew).
		Order("created_at asc").
		First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Service) GetReport(id uint) (*models.Report, error) {
	var report models.Report
	err := s.DB.First(&report, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Service) ResolveReport(id uint, status string, resolvedBy int64, now time.Time) error {
	return s.DB.Model(&models.Report{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": now,
			"resolved_by": resolvedBy,
		}).Error
}

func (s *Service) AddIncident(actorID, targetID *int64, kind, payload string, now time.Time) error {
	return s.DB.Create(&models.Incident{
		ActorID:   actorID,
		TargetID:  targetID,
		Type:      kind,
		Payload:   payload,
		CreatedAt: now,
	}).Error
}

func (s *Service) AddPromoUse(userID int64, code string, now time.Time) error {
	return s.DB.Create(&models.PromoUse{
		UserID: userID,
		Code:   code,
		UsedAt: now,
	}).Error
}

func (s *Service) HasUsedPromo(userID int64, code string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.PromoUse{}).
		Where("user_id = ? AND code = ?", userID, code).
		Count(&count).Error
	return count > 0, err
}

// Stats returns the aggregate counters shown to admins.
func (s *Service) Stats(now time.Time) (*models.Stats, error) {
	stats := &models.Stats{}
	if err := s.DB.Model(&models.User{}).Count(&stats.Users).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.Pair{}).Where("is_active = ?", true).
		Count(&stats.ActiveChats).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.Report{}).Where("status = ?", models.ReportStatusNew).
		Count(&stats.Reports).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.User{}).Where("is_banned = ?", true).
		Count(&stats.Banned).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.User{}).
		Where("is_banned = ? AND banned_until > ?", false, now).
		Count(&stats.TempBanned).Error; err != nil {
		return nil, err
	}
	// The admin CLI runs with no redis client, queue size stays 0 there.
	if s.Redis != nil {
		size, err := s.QueueSize()
		if err != nil {
			return nil, err
		}
		stats.Queue = size
	}
	return stats, nil
}

// ActiveUserIDs returns every non-banned user currently searching or
// chatting, in id order.
func (s *Service) ActiveUserIDs(now time.Time) ([]int64, error) {
	var ids []int64
	err := s.DB.Model(&models.User{}).
		Where("state IN ?", []models.State{models.StateSearching, models.StateChatting}).
		Where("is_banned = ?", false).
		Where("banned_until IS NULL OR banned_until <= ?", now).
		Order("id asc").
		Pluck("id", &ids).Error
	return ids, err
}
