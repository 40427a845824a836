package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/config"
	"github.com/atelier-hq/atelier-backend/internal/database"
	"github.com/atelier-hq/atelier-backend/internal/jobs"
	"github.com/atelier-hq/atelier-backend/internal/services"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
)

// sweeper runs the conversation deletion sweep once. With -enqueue it hands
// the sweep to the job workers instead of running it here.
func main() {
	enqueue := flag.Bool("enqueue", false, "enqueue the sweep task on the job queue (needs REDIS_URL)")
	at := flag.String("at", "", "sweep as of this RFC3339 time instead of now")
	flag.Parse()

	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if *enqueue {
		if cfg.RedisURL == "" {
			log.Fatal("REDIS_URL is required with -enqueue")
		}
		id, err := jobs.EnqueueSweep(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to enqueue sweep: %v", err)
		}
		fmt.Printf("Enqueued %s task %s\n", jobs.TypeConversationSweep, id)
		return
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	lifecycle := services.NewLifecycle(db, nil, cfg.DeletionGrace, services.SystemClock)

	now := services.SystemClock()
	if *at != "" {
		now, err = time.Parse(time.RFC3339, *at)
		if err != nil {
			log.Fatalf("Invalid -at: %v", err)
		}
		now = now.UTC()
	}

	report, err := lifecycle.SweepAt(ctx, now)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	fmt.Printf("Sweep at %s: %d due, %d deleted, %d failed\n", report.At.Format(time.RFC3339), len(report.Due), len(report.Deleted), len(report.Failed))
	for _, id := range report.Failed {
		fmt.Println("- failed:", id)
	}
}
