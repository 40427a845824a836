package migrations

import (
	"github.com/atelier-hq/atelier-backend/internal/models"
	"gorm.io/gorm"
)

// Migration001CreateMessagingTables creates conversations, participants and
// messages.
func Migration001CreateMessagingTables() Migration {
	return Migration{
		ID:   "001_create_messaging_tables",
		Name: "Create conversation, participant and message tables",
		Up: func(db *gorm.DB) error {
			return db.AutoMigrate(&models.Conversation{}, &models.Participant{}, &models.Message{})
		},
		Down: func(db *gorm.DB) error {
			return db.Migrator().DropTable(&models.Message{}, &models.Participant{}, &models.Conversation{})
		},
	}
}
