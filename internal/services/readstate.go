package services

import (
	"context"
	"errors"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/models"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Receipt is one participant's read marker.
type Receipt struct {
	Principal models.Principal `json:"principal"`
	LastRead  *time.Time       `json:"lastRead"`
}

// ReadState tracks the per participant last_read markers. REST and socket
// callers share MarkRead so both paths persist.
type ReadState struct {
	db      *gorm.DB
	members *Membership
	bus     Broadcaster
	now     Clock
	log     zerolog.Logger
}

func NewReadState(db *gorm.DB, members *Membership, bus Broadcaster, now Clock) *ReadState {
	if bus == nil {
		bus = nopBroadcaster{}
	}
	if now == nil {
		now = SystemClock
	}
	return &ReadState{db: db, members: members, bus: bus, now: now, log: logger.Component("readstate")}
}

// MarkRead advances p's marker to now and tells the room. The marker never
// moves backwards, so repeating the call only re-announces it.
func (r *ReadState) MarkRead(ctx context.Context, conversationID string, p models.Principal) (time.Time, error) {
	if err := r.members.Require(ctx, conversationID, p); err != nil {
		return time.Time{}, err
	}

	at := r.now()
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("conversation_id = ? AND principal_id = ? AND principal_kind = ?", conversationID, p.ID, p.Kind).
		Where("last_read IS NULL OR last_read < ?", at).
		Update("last_read", at).Error
	if err != nil {
		r.log.Error().Err(err).Str("conversation", conversationID).Str("principal", p.Key()).Msg("failed to persist read marker")
		return time.Time{}, apperrors.Persistence("failed to mark conversation read", err)
	}

	r.bus.EmitToRoom(conversationID, EventMessagesRead, ReadNotice{ConversationID: conversationID, Principal: p, ReadAt: at}, nil)
	return at, nil
}

func (r *ReadState) UnreadCount(ctx context.Context, conversationID string, p models.Principal) (int64, error) {
	part, err := findParticipant(r.db.WithContext(ctx), conversationID, p)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, r.members.Require(ctx, conversationID, p)
	}
	if err != nil {
		return 0, apperrors.Persistence("participant lookup failed", err)
	}

	n, err := countUnread(r.db.WithContext(ctx), conversationID, p, part.LastRead)
	if err != nil {
		return 0, apperrors.Persistence("failed to count unread messages", err)
	}
	return n, nil
}

// SeenByAll reports whether every participant other than the sender has a
// marker at or after msg.SentAt.
func (r *ReadState) SeenByAll(ctx context.Context, msg *models.Message) (bool, error) {
	var behind int64
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("conversation_id = ?", msg.ConversationID).
		Where("NOT (principal_id = ? AND principal_kind = ?)", msg.SenderID, msg.SenderKind).
		Where("last_read IS NULL OR last_read < ?", msg.SentAt).
		Count(&behind).Error
	if err != nil {
		return false, apperrors.Persistence("failed to read receipts", err)
	}
	return behind == 0, nil
}

// Receipts lists every participant's marker.
func (r *ReadState) Receipts(ctx context.Context, conversationID string, caller models.Principal) ([]Receipt, error) {
	if err := r.members.Require(ctx, conversationID, caller); err != nil {
		return nil, err
	}

	var parts []models.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC, principal_kind ASC, principal_id ASC").
		Find(&parts).Error
	if err != nil {
		return nil, apperrors.Persistence("failed to read receipts", err)
	}

	receipts := make([]Receipt, len(parts))
	for i, part := range parts {
		receipts[i] = Receipt{Principal: part.Principal(), LastRead: part.LastRead}
	}
	return receipts, nil
}
