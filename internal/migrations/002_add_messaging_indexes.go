package migrations

import (
	"gorm.io/gorm"
)

// Migration002AddMessagingIndexes adds indexes for the hot paths that the
// model tags do not cover:
// 1. inbox listing by principal (principal_kind, principal_id)
// 2. the deletion sweep (scheduled_deletion, partial)
// 3. unread counting (conversation_id, deleted, sent_at)
//
// Plain CREATE INDEX IF NOT EXISTS; the migrator runs Up in a transaction.
func Migration002AddMessagingIndexes() Migration {
	return Migration{
		ID:        "002_add_messaging_indexes",
		Name:      "Add messaging indexes for inbox, sweep and unread queries",
		DependsOn: []string{"001_create_messaging_tables"},
		Up: func(db *gorm.DB) error {
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_participants_principal
					ON conversation_participants (principal_kind, principal_id)`,
				`CREATE INDEX IF NOT EXISTS idx_conversations_due
					ON conversations (scheduled_deletion)
					WHERE scheduled_deletion IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_messages_unread
					ON messages (conversation_id, deleted, sent_at)`,
			}
			for _, stmt := range stmts {
				if err := db.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Down: func(db *gorm.DB) error {
			for _, idx := range []string{"idx_participants_principal", "idx_conversations_due", "idx_messages_unread"} {
				if err := db.Exec("DROP INDEX IF EXISTS " + idx).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}
