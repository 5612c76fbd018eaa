package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/storefront-admin/storefront/internal/jobs"
	"github.com/storefront-admin/storefront/internal/rbac"
)

type stubBootstrapper struct {
	catalogs []rbac.Catalog
	err      error
}

func (s *stubBootstrapper) Bootstrap(_ context.Context, catalog rbac.Catalog) error {
	s.catalogs = append(s.catalogs, catalog)
	return s.err
}

func TestCatalogSyncAppliesDefaultCatalog(t *testing.T) {
	svc := &stubBootstrapper{}
	job := NewCatalogSyncJob(svc, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewCatalogSyncTask("deploy")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, svc.catalogs, 1)
	assert.Len(t, svc.catalogs[0].Permissions, len(rbac.DefaultCatalog().Permissions))
}

func TestCatalogSyncAgainstMemoryStore(t *testing.T) {
	repo := rbac.NewMemoryRepository()
	svc := rbac.NewService(repo, nil, nil)
	job := NewCatalogSyncJob(svc, nil, nil)
	task, err := NewCatalogSyncTask("test")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), task))

	perms, err := svc.ListPermissions(context.Background())
	require.NoError(t, err)
	assert.Len(t, perms, len(rbac.DefaultCatalog().Permissions))
	role, err := svc.RoleByName(context.Background(), rbac.RoleSuperAdmin)
	require.NoError(t, err)
	assert.True(t, role.GrantsAll)
}

func TestCatalogSyncInvalidDefinitionSkipsRetry(t *testing.T) {
	svc := &stubBootstrapper{err: rbac.ErrInvalidDefinition}
	job := NewCatalogSyncJob(svc, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskCatalogSync, nil))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, rbac.ErrInvalidDefinition)
}

func TestCatalogSyncStoreFailureIsRetried(t *testing.T) {
	storeErr := &rbac.StoreError{Op: "upsert permission", Err: errors.New("connection refused")}
	job := NewCatalogSyncJob(&stubBootstrapper{err: storeErr}, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskCatalogSync, nil))
	assert.ErrorIs(t, err, rbac.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestCatalogSyncRejectsMalformedPayload(t *testing.T) {
	svc := &stubBootstrapper{}
	job := NewCatalogSyncJob(svc, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskCatalogSync, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, svc.catalogs)
}
