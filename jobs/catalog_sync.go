package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/storefront-admin/storefront/internal/jobs"
	"github.com/storefront-admin/storefront/internal/rbac"
)

// Bootstrapper applies a catalog to the permission store.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, catalog rbac.Catalog) error
}

// CatalogSyncJob registers the compiled permission catalog and role
// definitions.
type CatalogSyncJob struct {
	Service Bootstrapper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Catalog func() rbac.Catalog
}

// NewCatalogSyncJob initialises the catalog sync handler.
func NewCatalogSyncJob(service Bootstrapper, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogSyncJob {
	return &CatalogSyncJob{Service: service, Logger: logger, Metrics: metrics, Catalog: rbac.DefaultCatalog}
}

// Handle executes the sync. Definition errors are not retried.
func (j *CatalogSyncJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("catalog sync: handler not configured")
	}
	var payload CatalogSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("catalog sync payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.Metrics.Track(TaskCatalogSync)
	defer func() {
		err = tracker.End(err)
	}()

	catalog := rbac.DefaultCatalog()
	if j.Catalog != nil {
		catalog = j.Catalog()
	}
	logger := j.logger().With(slog.String("job", TaskCatalogSync), slog.String("reason", payload.Reason))
	if err := j.Service.Bootstrap(ctx, catalog); err != nil {
		logger.Error("catalog sync failed", slog.Any("error", err))
		if errors.Is(err, rbac.ErrInvalidDefinition) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	logger.Info("catalog synced",
		slog.Int("permissions", len(catalog.Permissions)),
		slog.Int("roles", len(catalog.Roles)),
	)
	return nil
}

func (j *CatalogSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
