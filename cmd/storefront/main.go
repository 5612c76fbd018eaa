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
	"github.com/redis/go-redis/v9"

	"github.com/storefront-admin/storefront/cmd/storefront/cli"
	"github.com/storefront-admin/storefront/internal/app"
	"github.com/storefront-admin/storefront/internal/audit"
	"github.com/storefront-admin/storefront/internal/observability"
	"github.com/storefront-admin/storefront/internal/platform/cache"
	"github.com/storefront-admin/storefront/internal/platform/db"
	"github.com/storefront-admin/storefront/internal/rbac"
	"github.com/storefront-admin/storefront/internal/shared"
	"github.com/storefront-admin/storefront/internal/users"
	"github.com/storefront-admin/storefront/internal/view"
	"github.com/storefront-admin/storefront/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, logger, os.Args[2:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	rbacService := rbac.NewService(rbac.NewPGRepository(dbpool), auditLogger, logger)
	rbacService.WithQueryTimeout(cfg.RBACQueryTimeout)
	var resolver rbac.Resolver = rbacService
	if cfg.RBACCacheEnabled {
		cacheClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("rbac cache disabled", slog.Any("error", err))
		} else {
			defer func() { _ = cacheClient.Close() }()
			cached := rbac.NewCachedResolver(rbacService, cacheClient, cfg.RBACCacheTTL, logger).WithRecorder(metrics)
			rbacService.WithInvalidator(cached)
			resolver = cached
		}
	}
	if cfg.RBACSyncOnStart {
		if err := rbacService.Bootstrap(ctx, rbac.DefaultCatalog()); err != nil {
			logger.Error("rbac catalog sync", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("rbac catalog synced")
	}

	authorizer := rbac.NewAuthorizer(resolver, metrics)
	rbacMiddleware := rbac.Middleware{Authorizer: authorizer, Logger: logger}
	pageGuard := rbac.PageGuard{
		Authorizer:    authorizer,
		Logger:        logger,
		LoginPath:     cfg.RBACLoginPath,
		ForbiddenPath: cfg.RBACForbiddenPath,
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	usersHandler := users.NewHandler(logger, users.NewService(users.NewRepository(dbpool)), rbacMiddleware)
	auditHandler := audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		PageGuard:      pageGuard,
		RBACHandler:    rbac.NewAdminHandler(logger, rbacService, rbacMiddleware, jobClient),
		UsersHandler:   usersHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobs.NewHandler(inspector, logger, rbacMiddleware),
		Metrics:        metrics,
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

func runJobs(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		logger.Error("init jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	if err := jobsCLI.Run(ctx, args, os.Stdout); err != nil {
		logger.Error("jobs", slog.Any("error", err))
		return 1
	}
	return 0
}
