package rbac

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the storage surface of the permission catalog, the role
// catalog and the assignment edges. Reads run against the current snapshot;
// every mutation goes through WithTx.
type Repository interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListRoles(ctx context.Context) ([]Role, error)
	RoleByName(ctx context.Context, name string) (Role, error)
	// RolesOf returns the roles assigned to a user.
	RolesOf(ctx context.Context, userID uuid.UUID) ([]Role, error)
	// PermissionsOf returns the permission ids granted to any of the roles in
	// a single lookup.
	PermissionsOf(ctx context.Context, roleIDs []uuid.UUID) ([]uuid.UUID, error)
	DirectPermissionsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	// PermissionsByID maps ids to catalog entries. Unknown ids are omitted.
	PermissionsByID(ctx context.Context, ids []uuid.UUID) ([]Permission, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations. Grants and revokes are
// idempotent; granting against a missing role, permission or user returns
// ErrNotFound.
type TxRepository interface {
	UpsertPermission(ctx context.Context, def PermissionDefinition) (Permission, error)
	UpsertRole(ctx context.Context, def RoleDefinition) (Role, error)
	PermissionsByName(ctx context.Context, names []string) ([]Permission, error)
	RolePermissionIDs(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)

	GrantRolePermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	RevokeRolePermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	GrantUserRole(ctx context.Context, userID, roleID uuid.UUID) error
	RevokeUserRole(ctx context.Context, userID, roleID uuid.UUID) error
	GrantUserPermission(ctx context.Context, userID, permissionID uuid.UUID) error
	RevokeUserPermission(ctx context.Context, userID, permissionID uuid.UUID) error
}
