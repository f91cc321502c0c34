package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"ghostchat/backend/internal/models"
	"ghostchat/backend/internal/storage"
)

// Offline moderation CLI. It works straight on the database, so actions
// taken here do not notify users; the lazy expiry checks pick the new
// restriction state up on their next interaction.
func main() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	s := storage.NewService(db, nil) // no redis needed for the admin CLI

	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "ban":
		userID := argUserID(2, "admin ban <user_id> [duration_in_hours]")
		if len(os.Args) > 3 {
			hours := argInt(3, "duration must be an integer")
			until := time.Now().Add(time.Duration(hours) * time.Hour)
			fatalIf(s.SetBannedUntil(userID, until))
			fmt.Printf("User %d banned until %s.\n", userID, until.Format(time.RFC3339))
		} else {
			fatalIf(s.SetBanned(userID, true))
			fmt.Printf("User %d banned.\n", userID)
		}
		fatalIf(s.SetState(userID, models.StateIdle))

	case "unban":
		userID := argUserID(2, "admin unban <user_id>")
		fatalIf(s.SetBanned(userID, false))
		fatalIf(s.SetBannedUntil(userID, time.Time{}))
		fmt.Printf("User %d unbanned.\n", userID)

	case "mute":
		userID := argUserID(2, "admin mute <user_id> <duration_in_minutes>")
		minutes := argInt(3, "duration must be an integer")
		until := time.Now().Add(time.Duration(minutes) * time.Minute)
		fatalIf(s.SetMutedUntil(userID, until))
		fmt.Printf("User %d muted until %s.\n", userID, until.Format(time.RFC3339))

	case "unmute":
		userID := argUserID(2, "admin unmute <user_id>")
		fatalIf(s.SetMutedUntil(userID, time.Time{}))
		fmt.Printf("User %d unmuted.\n", userID)

	case "stats":
		stats, err := s.Stats(time.Now())
		fatalIf(err)
		fmt.Printf("Users: %d\nActive chats: %d\nIn queue: %d\nOpen reports: %d\nBanned: %d\nTemp banned: %d\n",
			stats.Users, stats.ActiveChats, stats.Queue, stats.Reports, stats.Banned, stats.TempBanned)

	case "report-next":
		report, err := s.NextOpenReport()
		fatalIf(err)
		if report == nil {
			fmt.Println("No open reports.")
			return
		}
		fmt.Printf("Report #%d\nFrom: %d\nAgainst: %d\nReason: %s\nFiled: %s\n",
			report.ID, report.ReporterID, report.ReportedID, report.Reason,
			report.CreatedAt.Format(time.RFC3339))

	case "report-dismiss":
		id := argInt(2, "admin report-dismiss <report_id>")
		fatalIf(s.ResolveReport(uint(id), models.ReportStatusDismissed, 0, time.Now()))
		fmt.Printf("Report #%d dismissed.\n", id)

	case "report-resolve":
		id := argInt(2, "admin report-resolve <report_id> <ban_hours>")
		hours := argInt(3, "ban duration must be an integer")
		report, err := s.GetReport(uint(id))
		fatalIf(err)
		if report == nil {
			log.Fatalf("report %d not found", id)
		}
		until := time.Now().Add(time.Duration(hours) * time.Hour)
		fatalIf(s.SetBannedUntil(report.ReportedID, until))
		fatalIf(s.SetState(report.ReportedID, models.StateIdle))
		fatalIf(s.ResolveReport(uint(id), models.ReportStatusResolved, 0, time.Now()))
		fmt.Printf("Report #%d resolved, user %d banned until %s.\n",
			id, report.ReportedID, until.Format(time.RFC3339))

	default:
		usage()
	}
}

func usage() {
	fmt.Println("Usage: admin <ban|unban|mute|unmute|stats|report-next|report-dismiss|report-resolve> [args]")
	os.Exit(1)
}

func argUserID(pos int, hint string) int64 {
	if len(os.Args) <= pos {
		fmt.Println("Usage:", hint)
		os.Exit(1)
	}
	id, err := strconv.ParseInt(os.Args[pos], 10, 64)
	if err != nil {
		fmt.Println("Invalid user id. Please provide an integer.")
		os.Exit(1)
	}
	return id
}

func argInt(pos int, hint string) int {
	if len(os.Args) <= pos {
		fmt.Println("Usage hint:", hint)
		os.Exit(1)
	}
	n, err := strconv.Atoi(os.Args[pos])
	if err != nil {
		fmt.Println(hint)
		os.Exit(1)
	}
	return n
}

func fatalIf(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
