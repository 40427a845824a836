package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/config"
	"github.com/atelier-hq/atelier-backend/internal/database"
	"github.com/atelier-hq/atelier-backend/internal/migrations"
	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/atelier-hq/atelier-backend/internal/seeds"
	"github.com/atelier-hq/atelier-backend/internal/services"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/atelier-hq/atelier-backend/pkg/utils"
)

// seeder fills a development database with demo people and conversations
// and prints a token per demo principal.
func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Env)

	if cfg.Env == "production" {
		log.Fatal("❌ Refusing to seed a production database")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect database: %v", err)
	}

	log.Println("🔄 Running migrations (just in case)...")
	if err := migrations.NewMigrator(db).Run(); err != nil {
		log.Fatalf("❌ Failed to migrate: %v", err)
	}

	if err := seeds.SeedPeople(db); err != nil {
		log.Fatalf("❌ Failed to seed people: %v", err)
	}

	gate := utils.NewJWTVerifier(cfg.JWTSecret)
	m := services.NewMessaging(db, gate, services.OptionsFromConfig(cfg))
	if err := seeds.SeedConversations(context.Background(), m); err != nil {
		log.Fatalf("❌ Failed to seed conversations: %v", err)
	}

	if cfg.JWTSecret == "" {
		log.Println("⚠️ JWT_SECRET not set, skipping demo tokens")
		return
	}

	fmt.Println("Demo tokens (24h):")
	var principals []models.Principal
	for _, e := range seeds.DemoEmployees {
		principals = append(principals, models.Employee(e.ID))
	}
	for _, c := range seeds.DemoClients {
		principals = append(principals, models.Client(c.ID))
	}
	for _, p := range principals {
		token, err := utils.GenerateToken(cfg.JWTSecret, p, 24*time.Hour)
		if err != nil {
			log.Fatalf("❌ Failed to sign token for %s: %v", p, err)
		}
		fmt.Printf("%-20s %s\n", p.Key(), token)
	}

	log.Println("✅ Seeding complete")
}
