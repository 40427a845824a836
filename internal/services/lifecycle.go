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

// SweepReport summarizes one deletion sweep.
type SweepReport struct {
	At      time.Time `json:"at"`
	Due     []string  `json:"due"`
	Deleted []string  `json:"deleted"`
	Failed  []string  `json:"failed"`
}

// Lifecycle schedules project conversations for deletion once the project
// completes, and sweeps the ones whose grace window has passed.
type Lifecycle struct {
	db    *gorm.DB
	bus   Broadcaster
	grace time.Duration
	now   Clock
	log   zerolog.Logger

	purge func(ctx context.Context, db *gorm.DB, conversationID string) error
}

func NewLifecycle(db *gorm.DB, bus Broadcaster, grace time.Duration, now Clock) *Lifecycle {
	if bus == nil {
		bus = nopBroadcaster{}
	}
	if now == nil {
		now = SystemClock
	}
	return &Lifecycle{
		db:    db,
		bus:   bus,
		grace: grace,
		now:   now,
		log:   logger.Component("lifecycle"),
		purge: purgeConversation,
	}
}

// OnProjectCompleted sets scheduled_deletion = now + grace on the project's
// conversation unless it is already set. Duplicate events are no-ops.
func (l *Lifecycle) OnProjectCompleted(ctx context.Context, projectRef string) (*models.Conversation, error) {
	var conv models.Conversation
	err := l.db.WithContext(ctx).First(&conv, "project_ref = ? AND type = ?", projectRef, models.ConversationGroupProject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("project has no conversation")
	}
	if err != nil {
		return nil, apperrors.Persistence("conversation lookup failed", err)
	}

	at := l.now().Add(l.grace)
	res := l.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND scheduled_deletion IS NULL", conv.ID).
		Update("scheduled_deletion", at)
	if res.Error != nil {
		return nil, apperrors.Persistence("failed to schedule deletion", res.Error)
	}
	if res.RowsAffected > 0 {
		l.log.Info().Str("conversation", conv.ID).Str("project", projectRef).Time("scheduled_deletion", at).Msg("conversation scheduled for deletion")
	}

	if err := l.db.WithContext(ctx).First(&conv, "id = ?", conv.ID).Error; err != nil {
		return nil, apperrors.Persistence("conversation lookup failed", err)
	}
	return &conv, nil
}

// SweepAt deletes every conversation due at now. A failing conversation is
// logged and left for the next run; only a failed selection returns an error.
func (l *Lifecycle) SweepAt(ctx context.Context, now time.Time) (SweepReport, error) {
	report := SweepReport{At: now}

	err := l.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("scheduled_deletion IS NOT NULL AND scheduled_deletion <= ?", now).
		Order("scheduled_deletion ASC").
		Pluck("id", &report.Due).Error
	if err != nil {
		l.log.Error().Err(err).Msg("sweep selection failed")
		return report, apperrors.Persistence("failed to select due conversations", err)
	}

	for _, id := range report.Due {
		if ctx.Err() != nil {
			break
		}
		if err := l.purge(ctx, l.db, id); err != nil {
			l.log.Error().Err(err).Str("conversation", id).Msg("failed to delete due conversation")
			report.Failed = append(report.Failed, id)
			continue
		}
		report.Deleted = append(report.Deleted, id)
		l.bus.EmitToRoom(id, EventConversationDeleted, ConversationDeletedNotice{ConversationID: id, Reason: "expired"}, nil)
		l.bus.CloseRoom(id)
	}

	l.log.Info().
		Int("due", len(report.Due)).
		Int("deleted", len(report.Deleted)).
		Int("failed", len(report.Failed)).
		Msg("conversation sweep finished")
	return report, nil
}

func (l *Lifecycle) Sweep(ctx context.Context) (SweepReport, error) {
	return l.SweepAt(ctx, l.now())
}

// Run sweeps every interval until ctx is done. Used when no job queue is
// configured.
func (l *Lifecycle) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.log.Info().Dur("interval", interval).Msg("sweep runner started")
	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("sweep runner stopped")
			return
		case <-ticker.C:
			if _, err := l.Sweep(ctx); err != nil {
				l.log.Error().Err(err).Msg("sweep run failed")
			}
		}
	}
}
