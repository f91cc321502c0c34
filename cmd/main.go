package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"ghostchat/backend/internal/api/handler"
	"ghostchat/backend/internal/config"
	"ghostchat/backend/internal/localization"
	"ghostchat/backend/internal/matching"
	"ghostchat/backend/internal/moderation"
	"ghostchat/backend/internal/premium"
	"ghostchat/backend/internal/storage"
	"ghostchat/backend/internal/telegram"
)

func setupDependencies(cfg *config.Config) (*gorm.DB, *redis.Client) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DB.Host, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.Port)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	return db, rdb
}

func main() {
	log.Println("Starting GhostChat backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg := config.Load()
	if cfg.Token == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is not set")
	}

	db, rdb := setupDependencies(cfg)
	s := storage.NewService(db, rdb)
	if err := s.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database and Redis connections established, migrations complete.")

	localizer, err := localization.NewLocalizer(cfg.LocalesDir)
	if err != nil {
		log.Fatalf("Failed to load locales: %v", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		log.Fatalf("Failed to start the Telegram bot: %v", err)
	}
	bot.Debug = false
	log.Printf("✅ Authorized on account %s", bot.Self.UserName)

	transport := telegram.NewTransport(bot, s, localizer)
	engine := matching.NewEngine(s, transport, cfg)
	mod := moderation.NewService(s, engine)
	prem := premium.NewService(s, cfg.TrialDays, cfg.PromoCodes)

	botService := telegram.NewBotService(bot, transport, s, engine, mod, prem, localizer, cfg)
	go botService.Run()

	r := gin.Default()
	h := handler.NewHandler(s, mod, cfg)
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:           cfg.API.Addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	log.Fatal(server.ListenAndServe())
}
