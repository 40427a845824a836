package main

import (
	"fmt"
	"log"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/config"
	"github.com/atelier-hq/atelier-backend/internal/database"
	"github.com/atelier-hq/atelier-backend/internal/migrations"
	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
)

// inspect_chat prints table counts, applied migrations and the conversations
// waiting for deletion.
func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Env)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	applied, err := migrations.NewMigrator(db).Applied()
	if err != nil {
		log.Fatal("Failed to read migrations:", err)
	}
	fmt.Println("Applied migrations:")
	for _, id := range applied {
		fmt.Println("-", id)
	}

	counts := []struct {
		label string
		model interface{}
	}{
		{"conversations", &models.Conversation{}},
		{"participants", &models.Participant{}},
		{"messages", &models.Message{}},
	}
	for _, c := range counts {
		var n int64
		if err := db.Model(c.model).Count(&n).Error; err != nil {
			log.Fatalf("Count %s: %v", c.label, err)
		}
		fmt.Printf("%-14s %d\n", c.label+":", n)
	}

	var due []models.Conversation
	err = db.Where("scheduled_deletion IS NOT NULL").Order("scheduled_deletion ASC").Find(&due).Error
	if err != nil {
		log.Fatal("Failed to list scheduled deletions:", err)
	}

	now := time.Now().UTC()
	fmt.Printf("Scheduled deletions (%d):\n", len(due))
	for _, conv := range due {
		state := "pending"
		if !conv.ScheduledDeletion.After(now) {
			state = "due"
		}
		ref := ""
		if conv.ProjectRef != nil {
			ref = *conv.ProjectRef
		}
		fmt.Printf("- %s project=%s at=%s [%s]\n", conv.ID, ref, conv.ScheduledDeletion.Format(time.RFC3339), state)
	}
}
