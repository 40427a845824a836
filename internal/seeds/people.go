package seeds

import (
	"log"

	"github.com/atelier-hq/atelier-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DemoEmployees and DemoClients back the local development inbox. Their ids
// match the subject of tokens minted by the seeder.
var (
	DemoEmployees = []models.EmployeeProfile{
		{ID: "emp-ana", Name: "Ana Ortiz", Email: "ana@atelier.test", Position: "Project Manager",
			AvatarURL: "https://api.dicebear.com/7.x/initials/svg?seed=Ana%20Ortiz"},
		{ID: "emp-bruno", Name: "Bruno Lima", Email: "bruno@atelier.test", Position: "Designer",
			AvatarURL: "https://api.dicebear.com/7.x/initials/svg?seed=Bruno%20Lima"},
	}
	DemoClients = []models.ClientProfile{
		{ID: "cli-acme", Name: "Carla Mendes", Email: "carla@acme.test", Company: "Acme Bakery",
			AvatarURL: "https://api.dicebear.com/7.x/initials/svg?seed=Carla%20Mendes"},
	}
)

// SeedPeople inserts the demo staff and client records. Existing rows keep
// their values. In production the employees and clients tables belong to
// other services; locally they are created here.
func SeedPeople(db *gorm.DB) error {
	log.Println("👤 Seeding staff and clients...")

	if err := db.AutoMigrate(&models.EmployeeProfile{}, &models.ClientProfile{}); err != nil {
		return err
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&DemoEmployees).Error; err != nil {
		return err
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&DemoClients).Error; err != nil {
		return err
	}

	log.Printf("   ✅ %d employees, %d clients", len(DemoEmployees), len(DemoClients))
	return nil
}
