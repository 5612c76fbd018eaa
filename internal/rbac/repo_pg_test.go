package rbac

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// Set STOREFRONT_TEST_PG_DSN to run these against a real database. Each test
// migrates into its own schema and drops it afterwards.
const pgDSNEnv = "STOREFRONT_TEST_PG_DSN"

func newPGTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(pgDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", pgDSNEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := "rbac_it_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema + ",public"
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migration, err := os.ReadFile("../../migrations/0001_rbac.up.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(migration))
	require.NoError(t, err)
	return pool
}

type catalogRows struct {
	permissions map[string]time.Time
	roles       map[string]time.Time
	edges       map[string]bool
}

func snapshotCatalog(t *testing.T, ctx context.Context, pool *pgxpool.Pool) catalogRows {
	t.Helper()
	out := catalogRows{
		permissions: map[string]time.Time{},
		roles:       map[string]time.Time{},
		edges:       map[string]bool{},
	}
	readStamps := func(query string, into map[string]time.Time) {
		rows, err := pool.Query(ctx, query)
		require.NoError(t, err)
		defer rows.Close()
		for rows.Next() {
			var name string
			var at time.Time
			require.NoError(t, rows.Scan(&name, &at))
			into[name] = at
		}
		require.NoError(t, rows.Err())
	}
	readStamps(`SELECT name, updated_at FROM permissions`, out.permissions)
	readStamps(`SELECT name, updated_at FROM roles`, out.roles)

	rows, err := pool.Query(ctx, `SELECT r.name, p.name
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id
		JOIN permissions p ON p.id = rp.permission_id`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var role, perm string
		require.NoError(t, rows.Scan(&role, &perm))
		out.edges[role+"/"+perm] = true
	}
	require.NoError(t, rows.Err())
	return out
}

func TestPGBootstrapIsIdempotent(t *testing.T) {
	pool := newPGTestPool(t)
	ctx := context.Background()
	svc := NewService(NewPGRepository(pool), nil, nil)

	require.NoError(t, svc.Bootstrap(ctx, DefaultCatalog()))
	first := snapshotCatalog(t, ctx, pool)
	require.NotEmpty(t, first.permissions)
	require.NotEmpty(t, first.edges)

	require.NoError(t, svc.Bootstrap(ctx, DefaultCatalog()))
	second := snapshotCatalog(t, ctx, pool)

	require.Equal(t, first.permissions, second.permissions)
	require.Equal(t, first.roles, second.roles)
	require.Equal(t, first.edges, second.edges)
}

func TestPGBootstrapConvergesRoleEdges(t *testing.T) {
	pool := newPGTestPool(t)
	ctx := context.Background()
	svc := NewService(NewPGRepository(pool), nil, nil)
	require.NoError(t, svc.Bootstrap(ctx, DefaultCatalog()))

	catalog := DefaultCatalog()
	for i := range catalog.Roles {
		if catalog.Roles[i].Name == RoleCustomer {
			catalog.Roles[i].Permissions = Explicit("orders:self:read")
		}
	}
	require.NoError(t, svc.Bootstrap(ctx, catalog))

	edges := snapshotCatalog(t, ctx, pool).edges
	var customer []string
	for edge := range edges {
		if strings.HasPrefix(edge, RoleCustomer+"/") {
			customer = append(customer, edge)
		}
	}
	require.Equal(t, []string{RoleCustomer + "/orders:self:read"}, customer)
}

func TestPGAssignRoleIsIdempotent(t *testing.T) {
	pool := newPGTestPool(t)
	ctx := context.Background()
	svc := NewService(NewPGRepository(pool), nil, nil)
	require.NoError(t, svc.Bootstrap(ctx, DefaultCatalog()))

	var userID uuid.UUID
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, 'x') RETURNING id`,
		"it-"+uuid.NewString()+"@example.com").Scan(&userID))

	role, err := svc.RoleByName(ctx, RoleCustomer)
	require.NoError(t, err)
	in := RoleAssignment{UserID: userID, RoleID: role.ID}
	require.NoError(t, svc.AssignRole(ctx, in))
	require.NoError(t, svc.AssignRole(ctx, in))

	roles, err := svc.RolesOf(ctx, userID)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	set, err := svc.Resolve(ctx, userID)
	require.NoError(t, err)
	require.True(t, set.Has("orders:self:read"))
}
