package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/ledgerkite/ledgerkite/internal/app"
	"github.com/ledgerkite/ledgerkite/internal/billing"
	"github.com/ledgerkite/ledgerkite/internal/customers"
	"github.com/ledgerkite/ledgerkite/internal/events"
	"github.com/ledgerkite/ledgerkite/internal/items"
	"github.com/ledgerkite/ledgerkite/internal/observability"
	"github.com/ledgerkite/ledgerkite/internal/platform/cache"
	"github.com/ledgerkite/ledgerkite/internal/recon"
	"github.com/ledgerkite/ledgerkite/internal/shared"
	"github.com/ledgerkite/ledgerkite/internal/tenants"
	"github.com/ledgerkite/ledgerkite/internal/vendors"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(redisClient, 24*time.Hour)
	metrics := observability.NewMetrics()

	tenantRepo := tenants.NewRepository(pool)
	tenantService := tenants.NewService(tenantRepo, auditLogger)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, tenantService, auditLogger)

	customerRepo := customers.NewRepository(pool)
	customerService := customers.NewService(customerRepo, tenantService, billingService, auditLogger)

	vendorRepo := vendors.NewRepository(pool)
	vendorService := vendors.NewService(vendorRepo, tenantService, auditLogger)

	itemRepo := items.NewRepository(pool)
	itemService := items.NewService(itemRepo, tenantService, billingService, auditLogger)

	reconEngine := recon.NewEngine(recon.EngineConfig{
		Customers:   customerRepo,
		Vendors:     vendorRepo,
		Items:       itemRepo,
		Billing:     billingService,
		Idempotency: idempotencyStore,
		Metrics:     metrics,
		Publisher:   publisher,
		Logger:      logger,
		ChunkSize:   cfg.SyncChunkSize,
	})
	reconExporter := recon.NewExporter(customerRepo, vendorRepo, itemRepo, billingRepo)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		TenantsHandler:   tenants.NewHandler(logger, tenantService),
		CustomersHandler: customers.NewHandler(logger, customerService),
		VendorsHandler:   vendors.NewHandler(logger, vendorService),
		ItemsHandler:     items.NewHandler(logger, itemService),
		BillingHandler:   billing.NewHandler(logger, billingService),
		ReconHandler:     recon.NewHandler(logger, reconEngine, reconExporter),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
