// Package premium manages subscription expiries and the three grant
// paths: Telegram Stars purchase, one-time trial, and promo codes.
// Premium status itself is a lazy-expiry read on User.PremiumUntil.
package premium

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ghostchat/backend/internal/storage"
)

var (
	// ErrTrialUsed means the one-time trial was already granted.
	ErrTrialUsed = errors.New("trial already used")
	// ErrPromoUnknown means the code is not in the configured table.
	ErrPromoUnknown = errors.New("unknown promo code")
	// ErrPromoUsed means this user already redeemed this code.
	ErrPromoUsed = errors.New("promo code already used")
)

// Service grants premium time.
type Service struct {
	Storage    storage.Storage
	TrialDays  int
	PromoCodes map[string]int
	Now        func() time.Time
}

func NewService(s storage.Storage, trialDays int, promoCodes map[string]int) *Service {
	return &Service{
		Storage:    s,
		TrialDays:  trialDays,
		PromoCodes: promoCodes,
		Now:        time.Now,
	}
}

// AddDays extends an expiry by the given days, stacking on the later of
// now and the current expiry so remaining time is never lost.
func AddDays(current time.Time, days int, now time.Time) time.Time {
	if days <= 0 {
		return current
	}
	base := now
	if current.After(now) {
		base = current
	}
	return base.Add(time.Duration(days) * 24 * time.Hour)
}

// GrantPurchase extends premium after a successful Stars payment and logs
// the payment incident. Returns the new expiry.
func (s *Service) GrantPurchase(userID int64, days int, payload string) (time.Time, error) {
	until, err := s.extend(userID, days)
	if err != nil {
		return time.Time{}, err
	}
	return until, s.Storage.AddIncident(&userID, nil, "payment", payload, s.Now())
}

// GrantTrial grants the one-time trial period.
func (s *Service) GrantTrial(userID int64) (time.Time, error) {
	user, err := s.Storage.GetOrCreateUser(userID)
	if err != nil {
		return time.Time{}, err
	}
	if user.TrialUsed {
		return time.Time{}, ErrTrialUsed
	}
	until, err := s.extend(userID, s.TrialDays)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.Storage.SetTrialUsed(userID, true); err != nil {
		return time.Time{}, err
	}
	return until, s.Storage.AddIncident(&userID, nil, "trial", fmt.Sprintf("%dd", s.TrialDays), s.Now())
}

// RedeemPromo applies a configured promo code, once per user per code.
// Codes are case-insensitive. Returns the granted days and the new expiry.
func (s *Service) RedeemPromo(userID int64, code string) (int, time.Time, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	days, ok := s.PromoCodes[code]
	if !ok {
		return 0, time.Time{}, ErrPromoUnknown
	}
	used, err := s.Storage.HasUsedPromo(userID, code)
	if err != nil {
		return 0, time.Time{}, err
	}
	if used {
		return 0, time.Time{}, ErrPromoUsed
	}
	until, err := s.extend(userID, days)
	if err != nil {
		return 0, time.Time{}, err
	}
	if err := s.Storage.AddPromoUse(userID, code, s.Now()); err != nil {
		return 0, time.Time{}, err
	}
	return days, until, s.Storage.AddIncident(&userID, nil, "promo", code, s.Now())
}

func (s *Service) extend(userID int64, days int) (time.Time, error) {
	user, err := s.Storage.GetOrCreateUser(userID)
	if err != nil {
		return time.Time{}, err
	}
	until := AddDays(user.PremiumUntil, days, s.Now())
	return until, s.Storage.SetPremiumUntil(userID, until)
}
