package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/services"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/hibiken/asynq"
)

const (
	TypeConversationSweep = "conversations:sweep"

	maintenanceQueue = "maintenance"
	sweepTimeout     = 30 * time.Minute
)

// Sweeper deletes conversations whose scheduled deletion has passed.
type Sweeper interface {
	Sweep(ctx context.Context) (services.SweepReport, error)
}

// NewSweepTask builds the sweep task. It is never retried: conversations
// that fail stay due and are picked up by the next scheduled run.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeConversationSweep, nil,
		asynq.Queue(maintenanceQueue),
		asynq.MaxRetry(0),
		asynq.Timeout(sweepTimeout),
	)
}

func NewSweepHandler(s Sweeper) asynq.HandlerFunc {
	log := logger.Component("jobs")
	return func(ctx context.Context, t *asynq.Task) error {
		report, err := s.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("%s: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		log.Info().
			Str("task", t.Type()).
			Strs("deleted", report.Deleted).
			Strs("failed", report.Failed).
			Msg("sweep task done")
		return nil
	}
}

// EnqueueSweep asks the workers to run a sweep now.
func EnqueueSweep(ctx context.Context, redisURL string) (string, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return "", fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	client := asynq.NewClient(opt)
	defer client.Close()

	info, err := client.EnqueueContext(ctx, NewSweepTask())
	if err != nil {
		return "", err
	}
	return info.ID, nil
}
