package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestUserBanned(t *testing.T) {
	tests := []struct {
		name   string
		user   User
		banned bool
	}{
		{"clean account", User{}, false},
		{"permanent ban", User{IsBanned: true}, true},
		{"active temp ban", User{BannedUntil: now.Add(time.Hour)}, true},
		{"expired temp ban", User{BannedUntil: now.Add(-time.Hour)}, false},
		{"permanent outlives expired temp", User{IsBanned: true, BannedUntil: now.Add(-time.Hour)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.banned, tt.user.Banned(now))
		})
	}
}

func TestUserMuted(t *testing.T) {
	assert.False(t, (&User{}).Muted(now))
	assert.True(t, (&User{MutedUntil: now.Add(time.Minute)}).Muted(now))
	assert.False(t, (&User{MutedUntil: now.Add(-time.Minute)}).Muted(now))
}

func TestUserPremium(t *testing.T) {
	assert.False(t, (&User{}).Premium(now))
	assert.True(t, (&User{PremiumUntil: now.Add(time.Hour)}).Premium(now))
	assert.False(t, (&User{PremiumUntil: now.Add(-time.Second)}).Premium(now))
}

func TestStrictInterestNeedsActivePremium(t *testing.T) {
	// The stored flag alone is not enough once premium lapses.
	strict := &User{OnlyInterest: true, PremiumUntil: now.Add(time.Hour)}
	assert.True(t, strict.StrictInterest(now))

	lapsed := &User{OnlyInterest: true, PremiumUntil: now.Add(-time.Hour)}
	assert.False(t, lapsed.StrictInterest(now))

	premiumOnly := &User{PremiumUntil: now.Add(time.Hour)}
	assert.False(t, premiumOnly.StrictInterest(now))
}

func TestSkipThrottled(t *testing.T) {
	assert.False(t, (&User{}).SkipThrottled(now))
	assert.True(t, (&User{SkipUntil: now.Add(10 * time.Second)}).SkipThrottled(now))
	assert.False(t, (&User{SkipUntil: now}).SkipThrottled(now))
}

func TestPairPartnerOf(t *testing.T) {
	pair := &Pair{User1ID: 10, User2ID: 20}
	assert.EqualValues(t, 20, pair.PartnerOf(10))
	assert.EqualValues(t, 10, pair.PartnerOf(20))
}
