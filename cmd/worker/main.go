package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/acectf/registration/internal/ctfd"
	"github.com/acectf/registration/internal/database"
	"github.com/acectf/registration/internal/email"
	"github.com/acectf/registration/internal/tasks"
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

	logger.Info("starting registration worker")

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	mailer := email.NewMailer(&cfg.SMTP, cfg.Server.PublicURL, logger)
	ctfdClient := ctfd.NewClient(&cfg.CTFd, logger)
	webhook := ctfd.NewWebhookSender(&cfg.CTFd, logger)
	syncer := ctfd.NewSyncer(db, ctfdClient, logger)

	handler := tasks.NewHandler(logger, db, mailer, ctfdClient, webhook, syncer, redisClient)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, 10)

	// Periodic score sync, enqueued rather than run inline so it shares the
	// retry path with everything else.
	var scheduler *cron.Cron
	if cfg.CTFd.Enabled() {
		client := queue.NewClient(&cfg.Redis)
		defer client.Close()

		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.CTFd.SyncSpec, func() {
			if _, err := client.Enqueue(tasks.NewScoreSyncTask()); err != nil {
				logger.Error("failed to enqueue score sync", "error", err)
			}
		}); err != nil {
			logger.Error("invalid sync schedule", "spec", cfg.CTFd.SyncSpec, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		logger.Info("score sync scheduled", "spec", cfg.CTFd.SyncSpec)
	} else {
		logger.Info("CTFd integration not configured, score sync disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		if scheduler != nil {
			scheduler.Stop()
		}
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	redisClient.Close()
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
