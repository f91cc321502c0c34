// Package config holds the runtime configuration and the matchmaking
// tuning values. Everything comes from the environment (a .env file is
// loaded by the entrypoint); tunables default to the values the system
// has been running with.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Matching score weights. The relative ordering matters: the fresh-partner
// bonus dominates interest overlap, which dominates the premium bonus,
// which dominates the wait bonus. Do not reorder without a product
// decision.
const (
	ScoreInterestOverlap = 40
	ScoreFreshPartner    = 80
	ScorePremiumPartner  = 5

	// Wait bonus: one point per WaitBonusStep of queue time, capped at
	// WaitBonusCap.
	WaitBonusCap  = 180 * time.Second
	WaitBonusStep = 15 * time.Second
)

// Report reasons offered to users, in menu order.
var ReportReasons = []string{
	"spam",
	"insult",
	"adult",
	"fraud",
	"other",
}

// PremiumPlans maps plan duration in days to its price in Telegram Stars.
var PremiumPlans = map[int]int{
	7:  29,
	30: 99,
	90: 249,
}

type Config struct {
	Token    string
	AdminIDs []int64

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	API struct {
		Addr        string
		AdminSecret string
		JWTSecret   string
	}

	// SoftExpandWindow is how long a user with declared interests is held
	// to a strict interest match before the requirement relaxes.
	SoftExpandWindow time.Duration
	// SkipCooldown throttles repeated skip actions.
	SkipCooldown time.Duration

	TrialDays  int
	PromoCodes map[string]int // code -> premium days

	LocalesDir string
}

// Load reads the configuration from the environment.
func Load() *Config {
	cfg := &Config{}

	cfg.Token = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.AdminIDs = parseAdminIDs(os.Getenv("ADMIN_IDS"))

	cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
	cfg.DB.Port = getEnvDefault("DB_PORT", "5432")
	cfg.DB.User = getEnvDefault("DB_USER", "user")
	cfg.DB.Password = getEnvDefault("DB_PASSWORD", "password")
	cfg.DB.Name = getEnvDefault("DB_NAME", "ghostchatdb")

	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.API.Addr = getEnvDefault("API_ADDR", ":8080")
	cfg.API.AdminSecret = os.Getenv("API_ADMIN_SECRET")
	cfg.API.JWTSecret = getEnvDefault("API_JWT_SECRET", "change-me")

	cfg.SoftExpandWindow = time.Duration(getEnvInt("MATCH_SOFT_EXPAND_SECONDS", 45)) * time.Second
	cfg.SkipCooldown = time.Duration(getEnvInt("SKIP_COOLDOWN_SECONDS", 30)) * time.Second

	cfg.TrialDays = getEnvInt("TRIAL_DAYS", 3)
	cfg.PromoCodes = parsePromoCodes(os.Getenv("PROMO_CODES"))

	cfg.LocalesDir = getEnvDefault("LOCALES_DIR", "internal/localization/locales")

	return cfg
}

// IsAdmin reports whether the user id belongs to a configured admin.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseAdminIDs(raw string) []int64 {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// parsePromoCodes parses "CODE:days,CODE2:days" into a lookup table.
// Malformed entries and non-positive day counts are dropped.
func parsePromoCodes(raw string) map[string]int {
	out := make(map[string]int)
	for _, part := range strings.Split(raw, ",") {
		item := strings.TrimSpace(part)
		if item == "" || !strings.Contains(item, ":") {
			continue
		}
		kv := strings.SplitN(item, ":", 2)
		code := strings.ToUpper(strings.TrimSpace(kv[0]))
		days, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil || days <= 0 || code == "" {
			continue
		}
		out[code] = days
	}
	return out
}
