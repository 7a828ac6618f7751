package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/ledgerkite/ledgerkite/internal/app"
	"github.com/ledgerkite/ledgerkite/internal/billing"
	"github.com/ledgerkite/ledgerkite/internal/customers"
	"github.com/ledgerkite/ledgerkite/internal/events"
	"github.com/ledgerkite/ledgerkite/internal/items"
	jobmetrics "github.com/ledgerkite/ledgerkite/internal/jobs"
	"github.com/ledgerkite/ledgerkite/internal/shared"
	"github.com/ledgerkite/ledgerkite/internal/tenants"
	"github.com/ledgerkite/ledgerkite/internal/vendors"
	"github.com/ledgerkite/ledgerkite/jobs"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, logger)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn("kafka close", slog.Any("error", err))
			}
		}()
		publisher = kafkaPublisher
	}

	metrics := jobmetrics.NewMetrics(nil)
	pusher := jobs.NewPusher(jobs.PusherConfig{
		Tenants:   tenants.NewRepository(pool),
		Customers: customers.NewRepository(pool),
		Vendors:   vendors.NewRepository(pool),
		Items:     items.NewRepository(pool),
		Billing:   billing.NewRepository(pool),
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logger,
		Limit:     cfg.SyncPushLimit,
	})
	cleaner := jobs.NewAuditCleaner(shared.NewAuditLogger(pool), cfg.AuditRetention, metrics, logger)

	pushTask, err := jobs.NewSyncPushTask(cfg.SyncPushLimit)
	if err != nil {
		logger.Error("build push task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewAuditCleanupTask(cfg.AuditRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSyncPush, Handler: pusher.HandleTask},
			{Type: jobs.TaskAuditCleanup, Handler: cleaner.HandleTask},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every " + cfg.SyncPushInterval.String(), Task: pushTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
