package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Runner owns the asynq scheduler that enqueues the sweep on a cron spec and
// the worker that executes it.
type Runner struct {
	cron      string
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	log       zerolog.Logger
}

func NewRunner(redisURL, cron string, sweeper Sweeper) (*Runner, error) {
	if cron == "" {
		return nil, fmt.Errorf("asynq: sweep cron spec is empty")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}

	log := logger.Component("jobs")
	qlog := queueLogger{log: log}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{maintenanceQueue: 1},
		Logger:      qlog,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})
	sched := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   qlog,
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeConversationSweep, NewSweepHandler(sweeper))

	return &Runner{cron: cron, server: srv, scheduler: sched, mux: mux, log: log}, nil
}

func (r *Runner) Start() error {
	entryID, err := r.scheduler.Register(r.cron, NewSweepTask())
	if err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	if err := r.server.Start(r.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	if err := r.scheduler.Start(); err != nil {
		r.server.Shutdown()
		return fmt.Errorf("start scheduler: %w", err)
	}
	r.log.Info().Str("cron", r.cron).Str("entry", entryID).Msg("sweep scheduled")
	return nil
}

func (r *Runner) Shutdown() {
	r.scheduler.Shutdown()
	r.server.Shutdown()
}

// queueLogger routes asynq's own logging through zerolog.
type queueLogger struct {
	log zerolog.Logger
}

func (q queueLogger) Debug(args ...interface{}) { q.log.Debug().Msg(fmt.Sprint(args...)) }
func (q queueLogger) Info(args ...interface{})  { q.log.Info().Msg(fmt.Sprint(args...)) }
func (q queueLogger) Warn(args ...interface{})  { q.log.Warn().Msg(fmt.Sprint(args...)) }
func (q queueLogger) Error(args ...interface{}) { q.log.Error().Msg(fmt.Sprint(args...)) }
func (q queueLogger) Fatal(args ...interface{}) { q.log.Fatal().Msg(fmt.Sprint(args...)) }
