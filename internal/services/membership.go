package services

import (
	"context"

	"github.com/atelier-hq/atelier-backend/internal/models"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"gorm.io/gorm"
)

// Membership answers participant questions straight from the store.
type Membership struct {
	db *gorm.DB
}

func NewMembership(db *gorm.DB) *Membership {
	return &Membership{db: db}
}

func (m *Membership) IsParticipant(ctx context.Context, conversationID string, p models.Principal) (bool, error) {
	var n int64
	err := m.db.WithContext(ctx).Model(&models.Participant{}).
		Where("conversation_id = ? AND principal_id = ? AND principal_kind = ?", conversationID, p.ID, p.Kind).
		Count(&n).Error
	if err != nil {
		return false, apperrors.Persistence("membership lookup failed", err)
	}
	return n > 0, nil
}

// Require fails with NotFound for an unknown conversation and with an
// authorization error when p is not among its participants.
func (m *Membership) Require(ctx context.Context, conversationID string, p models.Principal) error {
	ok, err := m.IsParticipant(ctx, conversationID, p)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	var n int64
	if err := m.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", conversationID).Count(&n).Error; err != nil {
		return apperrors.Persistence("conversation lookup failed", err)
	}
	if n == 0 {
		return apperrors.NotFound("conversation not found")
	}
	return apperrors.Forbidden("not a participant of this conversation")
}
