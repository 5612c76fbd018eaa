package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-admin/storefront/internal/platform/db"
)

const (
	pgForeignKeyViolation = "23503"

	permissionColumns = `id, name, COALESCE(description, ''), deprecated, created_at, updated_at`
	roleColumns       = `r.id, r.name, COALESCE(r.description, ''), r.is_system, r.grants_all, r.created_at, r.updated_at`
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type pgTxRepo struct {
	tx pgx.Tx
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepo{tx: tx})
	})
}

// ListPermissions returns all permissions ordered by name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles r ORDER BY r.name`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// RoleByName fetches a role by its unique name.
func (r *PGRepository) RoleByName(ctx context.Context, name string) (Role, error) {
	return roleByName(ctx, r.pool, name)
}

// RolesOf returns the roles assigned to userID.
func (r *PGRepository) RolesOf(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roleColumns+`
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// PermissionsOf returns the distinct permission ids granted to roleIDs.
func (r *PGRepository) PermissionsOf(ctx context.Context, roleIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT permission_id
		FROM role_permissions
		WHERE role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// DirectPermissionsOf returns the permission ids granted straight to userID.
func (r *PGRepository) DirectPermissionsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT permission_id FROM user_permissions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// PermissionsByID maps ids to catalog rows.
func (r *PGRepository) PermissionsByID(ctx context.Context, ids []uuid.UUID) ([]Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = ANY($1) ORDER BY name`, ids)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// UpsertPermission inserts the permission or refreshes its metadata. Rows
// whose metadata already matches are left untouched.
func (t *pgTxRepo) UpsertPermission(ctx context.Context, def PermissionDefinition) (Permission, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO permissions (name, description, deprecated)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description,
		    deprecated = EXCLUDED.deprecated,
		    updated_at = NOW()
		WHERE permissions.description IS DISTINCT FROM EXCLUDED.description
		   OR permissions.deprecated IS DISTINCT FROM EXCLUDED.deprecated`,
		def.Name, def.Description, def.Deprecated)
	if err != nil {
		return Permission{}, err
	}
	var p Permission
	err = t.tx.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE name = $1`, def.Name).
		Scan(&p.ID, &p.Name, &p.Description, &p.Deprecated, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// UpsertRole inserts the role or refreshes its metadata and selector tag.
func (t *pgTxRepo) UpsertRole(ctx context.Context, def RoleDefinition) (Role, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO roles (name, description, is_system, grants_all)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description,
		    is_system = EXCLUDED.is_system,
		    grants_all = EXCLUDED.grants_all,
		    updated_at = NOW()
		WHERE roles.description IS DISTINCT FROM EXCLUDED.description
		   OR roles.is_system IS DISTINCT FROM EXCLUDED.is_system
		   OR roles.grants_all IS DISTINCT FROM EXCLUDED.grants_all`,
		def.Name, def.Description, def.IsSystem, def.Permissions.IsAll())
	if err != nil {
		return Role{}, err
	}
	return roleByName(ctx, t.tx, def.Name)
}

// PermissionsByName returns the catalog rows matching names. Unknown names
// are omitted.
func (t *pgTxRepo) PermissionsByName(ctx context.Context, names []string) ([]Permission, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE name = ANY($1) ORDER BY name`, names)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// RolePermissionIDs lists the permission ids attached to roleID.
func (t *pgTxRepo) RolePermissionIDs(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := t.tx.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (t *pgTxRepo) GrantRolePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return t.grant(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roleID, permissionID)
}

func (t *pgTxRepo) RevokeRolePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

func (t *pgTxRepo) GrantUserRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return t.grant(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
}

func (t *pgTxRepo) RevokeUserRole(ctx context.Context, userID, roleID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

func (t *pgTxRepo) GrantUserPermission(ctx context.Context, userID, permissionID uuid.UUID) error {
	return t.grant(ctx, `INSERT INTO user_permissions (user_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, permissionID)
}

func (t *pgTxRepo) RevokeUserPermission(ctx context.Context, userID, permissionID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`, userID, permissionID)
	return err
}

func (t *pgTxRepo) grant(ctx context.Context, sql string, left, right uuid.UUID) error {
	_, err := t.tx.Exec(ctx, sql, left, right)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
	}
	return err
}

func roleByName(ctx context.Context, q querier, name string) (Role, error) {
	var role Role
	err := q.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.name = $1`, name).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.GrantsAll, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Deprecated, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.GrantsAll, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func collectIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
