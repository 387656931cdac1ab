package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/acectf/registration/internal/api"
	"github.com/acectf/registration/internal/auth"
	"github.com/acectf/registration/internal/database"
	"github.com/acectf/registration/internal/leaderboard"
	"github.com/acectf/registration/internal/tasks"
	"github.com/acectf/registration/internal/teams"
	"github.com/acectf/registration/pkg/config"
	"github.com/acectf/registration/pkg/queue"
	"github.com/acectf/registration/pkg/util"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting registration server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Redis is optional: without it emails, webhooks and live score pushes
	// are skipped but registration itself keeps working.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to redis, background jobs disabled", "error", err)
		redisClient = nil
	}

	var asynqClient *asynq.Client
	var enqueuer tasks.Enqueuer
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		enqueuer = asynqClient
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService, enqueuer, logger)
	teamService := teams.NewService(db, enqueuer, logger)

	hub := leaderboard.NewHub(logger)
	go hub.Run()

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	if redisClient != nil {
		go bridgeScoreUpdates(rootCtx, redisClient, db, hub, logger)
	}

	router := api.NewRouter(api.RouterConfig{
		DB:          db,
		Redis:       redisClient,
		Logger:      logger,
		Config:      cfg,
		JWTService:  jwtService,
		AuthService: authService,
		TeamService: teamService,
		Queue:       enqueuer,
		Hub:         hub,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if asynqClient != nil {
		asynqClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}

// bridgeScoreUpdates relays worker-side score syncs to connected websocket
// viewers. The worker publishes after each sync that changed something; here
// the fresh standings are read once and fanned out.
func bridgeScoreUpdates(ctx context.Context, redisClient *redis.Client, db *gorm.DB, hub *leaderboard.Hub, logger *slog.Logger) {
	sub := redisClient.Subscribe(ctx, tasks.LeaderboardChannel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Channel():
			if !ok {
				return
			}
			entries, err := leaderboard.Snapshot(ctx, db)
			if err != nil {
				logger.Error("leaderboard snapshot failed", "error", err)
				continue
			}
			hub.Broadcast("leaderboard.updated", entries)
			logger.Debug("leaderboard pushed", "teams", len(entries), "clients", hub.ClientCount())
		}
	}
}
