package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/storefront-admin/storefront/internal/app"
	jobmetrics "github.com/storefront-admin/storefront/internal/jobs"
	"github.com/storefront-admin/storefront/internal/platform/cache"
	"github.com/storefront-admin/storefront/internal/platform/db"
	"github.com/storefront-admin/storefront/internal/rbac"
	"github.com/storefront-admin/storefront/internal/shared"
	"github.com/storefront-admin/storefront/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 4})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rbacService := rbac.NewService(rbac.NewPGRepository(pool), shared.NewAuditLogger(pool), logger)
	rbacService.WithQueryTimeout(cfg.RBACQueryTimeout)
	// A sync may change role grants; drop cached snapshots the web process
	// holds for the same Redis.
	if cfg.RBACCacheEnabled {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("rbac cache invalidation disabled", slog.Any("error", err))
		} else {
			defer func() { _ = redisClient.Close() }()
			rbacService.WithInvalidator(rbac.NewCachedResolver(rbacService, redisClient, cfg.RBACCacheTTL, logger))
		}
	}

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	catalogSync := jobs.NewCatalogSyncJob(rbacService, logger, metrics)

	syncTask, err := jobs.NewCatalogSyncTask("schedule")
	if err != nil {
		logger.Error("build catalog sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCatalogSync, Handler: catalogSync.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: syncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
