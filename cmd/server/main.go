package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/config"
	"github.com/atelier-hq/atelier-backend/internal/database"
	"github.com/atelier-hq/atelier-backend/internal/handlers"
	"github.com/atelier-hq/atelier-backend/internal/jobs"
	"github.com/atelier-hq/atelier-backend/internal/middleware"
	"github.com/atelier-hq/atelier-backend/internal/migrations"
	"github.com/atelier-hq/atelier-backend/internal/routes"
	"github.com/atelier-hq/atelier-backend/internal/services"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/atelier-hq/atelier-backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 0. Load Config & Initialize Logger
	config.LoadConfig()
	cfg := config.AppConfig

	logger.Init(cfg.Env)
	logger.Info().Str("environment", cfg.Env).Msg("Starting Atelier messaging backend...")

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET is required")
	}

	// 1. Connect Database and run migrations
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect database")
	}

	logger.Info().Msg("🔄 Running Database Migrations...")
	if err := migrations.NewMigrator(db).Run(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate database")
	}
	logger.Info().Msg("✅ Database Migrations Complete")

	// 2. Optional Redis: presence mirror, shared send limits, job queue
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect Redis")
		}
		defer rdb.Close()
		logger.Info().Msg("Connected to Redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set: presence is local, sweep runs in-process")
	}

	// 3. Messaging core
	opts := services.OptionsFromConfig(cfg)
	blobs, err := services.NewBlobStore(context.Background(), cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("Attachment storage unavailable, uploads disabled")
	} else {
		opts.Blobs = blobs
	}
	if rdb != nil {
		opts.Mirror = services.NewRedisPresence(rdb, 2*cfg.PresenceInterval)
	}

	gate := utils.NewJWTVerifier(cfg.JWTSecret)
	messaging := services.NewMessaging(db, gate, opts)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go messaging.Presence.Run(ctx)

	// 4. Deletion sweep: asynq cron when Redis is there, ticker otherwise
	var runner *jobs.Runner
	if cfg.RedisURL != "" {
		runner, err = jobs.NewRunner(cfg.RedisURL, cfg.SweepCron, messaging.Lifecycle)
		if err == nil {
			err = runner.Start()
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to start job runner")
		}
	} else {
		go messaging.Lifecycle.Run(ctx, cfg.SweepInterval)
	}

	// 5. Send budget shared by REST and the socket, then socket.io and router
	var shared *database.RateLimiter
	if rdb != nil {
		shared = database.NewRateLimiter(rdb)
	}
	sends := middleware.NewSendLimiter(shared, cfg.SendRateLimit)

	socketServer := handlers.InitSocketServer(handlers.NewSocketEvents(messaging).WithSendLimiter(sends), nil)
	go func() {
		if err := socketServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("Socket server stopped")
		}
	}()

	r := routes.NewRouter(routes.Deps{
		Messaging:   messaging,
		Gate:        gate,
		Socket:      socketServer,
		SendLimit:   sends.Handler(),
		IPLimiter:   middleware.NewGeneralLimiter(),
		FrontendURL: cfg.FrontendURL,
		Ready: func() error {
			if err := database.Ping(db); err != nil {
				return err
			}
			if rdb != nil {
				return rdb.Ping(context.Background()).Err()
			}
			return nil
		},
	})

	// 6. Start Server with graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("🛑 Shutting down server gracefully...")
	stop()
	if runner != nil {
		runner.Shutdown()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := socketServer.Close(); err != nil {
		logger.Warn().Err(err).Msg("Socket server close failed")
	}

	logger.Info().Msg("✅ Server exited gracefully")
}
