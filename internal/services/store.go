package services

import (
	"context"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/models"
	"gorm.io/gorm"
)

// purgeConversation removes a conversation with its messages and
// participants in one transaction. The conversation row goes first: a send
// in flight holds that row, so its message is committed before the message
// delete runs.
func purgeConversation(ctx context.Context, db *gorm.DB, conversationID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", conversationID).Delete(&models.Conversation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&models.Participant{}).Error; err != nil {
			return err
		}
		return tx.Where("conversation_id = ?", conversationID).Delete(&models.Message{}).Error
	})
}

// countUnread counts live messages newer than lastRead not sent by p. A nil
// lastRead counts from the epoch.
func countUnread(db *gorm.DB, conversationID string, p models.Principal, lastRead *time.Time) (int64, error) {
	q := db.Model(&models.Message{}).
		Where("conversation_id = ? AND deleted = ?", conversationID, false).
		Where("NOT (sender_id = ? AND sender_kind = ?)", p.ID, p.Kind)
	if lastRead != nil {
		q = q.Where("sent_at > ?", *lastRead)
	}

	var n int64
	err := q.Count(&n).Error
	return n, err
}

// lastMessage returns the newest live message of a conversation, nil if none.
func lastMessage(db *gorm.DB, conversationID string) (*models.Message, error) {
	var msgs []models.Message
	err := db.Where("conversation_id = ? AND deleted = ?", conversationID, false).
		Order("sent_at DESC, id DESC").
		Limit(1).
		Find(&msgs).Error
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

func findParticipant(db *gorm.DB, conversationID string, p models.Principal) (*models.Participant, error) {
	var part models.Participant
	err := db.Where("conversation_id = ? AND principal_id = ? AND principal_kind = ?", conversationID, p.ID, p.Kind).
		First(&part).Error
	if err != nil {
		return nil, err
	}
	return &part, nil
}
