package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/storefront-admin/storefront/internal/shared"
)

// DefaultQueryTimeout bounds every store call when no timeout is configured.
const DefaultQueryTimeout = 3 * time.Second

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator is notified after a committed mutation so cached permission
// snapshots can be dropped.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID uuid.UUID) error
	InvalidateAll(ctx context.Context) error
}

// RoleAssignment links a user to a role.
type RoleAssignment struct {
	UserID  uuid.UUID
	RoleID  uuid.UUID
	ActorID uuid.UUID
}

// PermissionGrant grants a named permission straight to a user.
type PermissionGrant struct {
	UserID     uuid.UUID
	Permission string
	ActorID    uuid.UUID
}

// RolePermissionGrant attaches a named permission to a role.
type RolePermissionGrant struct {
	RoleID     uuid.UUID
	Permission string
	ActorID    uuid.UUID
}

// Service orchestrates RBAC operations.
type Service struct {
	repo         Repository
	audit        AuditPort
	logger       *slog.Logger
	invalidator  Invalidator
	queryTimeout time.Duration
	now          func() time.Time
}

// NewService constructs a Service backed by the provided repository.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		audit:        audit,
		logger:       logger,
		queryTimeout: DefaultQueryTimeout,
		now:          time.Now,
	}
}

// WithQueryTimeout overrides the per-call storage timeout. Zero disables it.
func (s *Service) WithQueryTimeout(d time.Duration) {
	s.queryTimeout = d
}

// WithInvalidator registers the cache hook fired after mutations.
func (s *Service) WithInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// WithNow overrides the clock used for audit timestamps.
func (s *Service) WithNow(now func() time.Time) {
	s.now = now
}

// ListPermissions returns the catalog ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return call(ctx, s, "list permissions", s.repo.ListPermissions)
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return call(ctx, s, "list roles", s.repo.ListRoles)
}

// RoleByName fetches a role by name.
func (s *Service) RoleByName(ctx context.Context, name string) (Role, error) {
	return call(ctx, s, "role by name", func(ctx context.Context) (Role, error) {
		return s.repo.RoleByName(ctx, name)
	})
}

// RolesOf returns the roles assigned to userID.
func (s *Service) RolesOf(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	return call(ctx, s, "roles of", func(ctx context.Context) ([]Role, error) {
		return s.repo.RolesOf(ctx, userID)
	})
}

// SyncPermissions upserts the permission catalog in one transaction.
func (s *Service) SyncPermissions(ctx context.Context, defs []PermissionDefinition) error {
	defs, err := normalizePermissionDefinitions(defs)
	if err != nil {
		return err
	}
	if err := s.inTx(ctx, "sync permissions", func(ctx context.Context, tx TxRepository) error {
		return upsertPermissions(ctx, tx, defs)
	}); err != nil {
		return err
	}
	s.record(ctx, uuid.Nil, "rbac.permissions.sync", "catalog", "permissions", map[string]any{"permissions": len(defs)})
	s.invalidateAll(ctx)
	return nil
}

// DefineRoles upserts roles and converges their permission edges. Explicit
// names missing from the catalog are skipped.
func (s *Service) DefineRoles(ctx context.Context, defs []RoleDefinition) error {
	defs, err := normalizeRoleDefinitions(defs)
	if err != nil {
		return err
	}
	if err := s.inTx(ctx, "define roles", func(ctx context.Context, tx TxRepository) error {
		return s.defineRoles(ctx, tx, defs)
	}); err != nil {
		return err
	}
	s.record(ctx, uuid.Nil, "rbac.roles.define", "catalog", "roles", map[string]any{"roles": len(defs)})
	s.invalidateAll(ctx)
	return nil
}

// Bootstrap applies a whole catalog, permissions first, in one transaction.
// Re-running it with the same catalog leaves stored rows unchanged.
func (s *Service) Bootstrap(ctx context.Context, catalog Catalog) error {
	perms, err := normalizePermissionDefinitions(catalog.Permissions)
	if err != nil {
		return err
	}
	roles, err := normalizeRoleDefinitions(catalog.Roles)
	if err != nil {
		return err
	}
	if err := s.inTx(ctx, "bootstrap", func(ctx context.Context, tx TxRepository) error {
		if err := upsertPermissions(ctx, tx, perms); err != nil {
			return err
		}
		return s.defineRoles(ctx, tx, roles)
	}); err != nil {
		return err
	}
	s.logger.Info("rbac catalog applied", slog.Int("permissions", len(perms)), slog.Int("roles", len(roles)))
	s.record(ctx, uuid.Nil, "rbac.catalog.sync", "catalog", "default", map[string]any{
		"permissions": len(perms),
		"roles":       len(roles),
	})
	s.invalidateAll(ctx)
	return nil
}

func upsertPermissions(ctx context.Context, tx TxRepository, defs []PermissionDefinition) error {
	for _, def := range defs {
		if _, err := tx.UpsertPermission(ctx, def); err != nil {
			return fmt.Errorf("upsert permission %s: %w", def.Name, err)
		}
	}
	return nil
}

func (s *Service) defineRoles(ctx context.Context, tx TxRepository, defs []RoleDefinition) error {
	for _, def := range defs {
		role, err := tx.UpsertRole(ctx, def)
		if err != nil {
			return fmt.Errorf("upsert role %s: %w", def.Name, err)
		}
		keep := make(map[uuid.UUID]struct{})
		if !def.Permissions.IsAll() {
			names := def.Permissions.Names()
			perms, err := tx.PermissionsByName(ctx, names)
			if err != nil {
				return err
			}
			if len(perms) < len(names) {
				s.logger.Debug("rbac role references unknown permissions",
					slog.String("role", def.Name),
					slog.Any("skipped", missingNames(names, perms)))
			}
			for _, p := range perms {
				keep[p.ID] = struct{}{}
			}
		}
		existing, err := tx.RolePermissionIDs(ctx, role.ID)
		if err != nil {
			return err
		}
		current := make(map[uuid.UUID]struct{}, len(existing))
		for _, id := range existing {
			current[id] = struct{}{}
			if _, ok := keep[id]; !ok {
				if err := tx.RevokeRolePermission(ctx, role.ID, id); err != nil {
					return err
				}
			}
		}
		for id := range keep {
			if _, ok := current[id]; ok {
				continue
			}
			if err := tx.GrantRolePermission(ctx, role.ID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func missingNames(names []string, found []Permission) []string {
	present := make(map[string]struct{}, len(found))
	for _, p := range found {
		present[p.Name] = struct{}{}
	}
	var missing []string
	for _, n := range names {
		if _, ok := present[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Resolve computes the effective permission set of userID: the union of the
// permissions reachable through its roles and its direct grants. A role that
// grants everything expands to the live catalog.
func (s *Service) Resolve(ctx context.Context, userID uuid.UUID) (PermissionSet, error) {
	roles, err := s.RolesOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	roleIDs := make([]uuid.UUID, 0, len(roles))
	for _, role := range roles {
		if role.GrantsAll {
			perms, err := s.ListPermissions(ctx)
			if err != nil {
				return nil, err
			}
			return permissionSetOf(perms), nil
		}
		roleIDs = append(roleIDs, role.ID)
	}

	var fromRoles []uuid.UUID
	if len(roleIDs) > 0 {
		fromRoles, err = call(ctx, s, "permissions of roles", func(ctx context.Context) ([]uuid.UUID, error) {
			return s.repo.PermissionsOf(ctx, roleIDs)
		})
		if err != nil {
			return nil, err
		}
	}
	direct, err := call(ctx, s, "direct permissions", func(ctx context.Context) ([]uuid.UUID, error) {
		return s.repo.DirectPermissionsOf(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	ids := unionIDs(fromRoles, direct)
	if len(ids) == 0 {
		return PermissionSet{}, nil
	}
	perms, err := call(ctx, s, "permissions by id", func(ctx context.Context) ([]Permission, error) {
		return s.repo.PermissionsByID(ctx, ids)
	})
	if err != nil {
		return nil, err
	}
	return permissionSetOf(perms), nil
}

// EffectivePermissions returns the sorted permission names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	set, err := s.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return set.Names(), nil
}

// AssignRole assigns a role to the given user.
func (s *Service) AssignRole(ctx context.Context, in RoleAssignment) error {
	if err := s.inTx(ctx, "assign role", func(ctx context.Context, tx TxRepository) error {
		return tx.GrantUserRole(ctx, in.UserID, in.RoleID)
	}); err != nil {
		return err
	}
	s.record(ctx, in.ActorID, "rbac.role.assign", "user", in.UserID.String(), map[string]any{"role_id": in.RoleID.String()})
	s.invalidateUser(ctx, in.UserID)
	return nil
}

// RemoveRole removes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, in RoleAssignment) error {
	if err := s.inTx(ctx, "remove role", func(ctx context.Context, tx TxRepository) error {
		return tx.RevokeUserRole(ctx, in.UserID, in.RoleID)
	}); err != nil {
		return err
	}
	s.record(ctx, in.ActorID, "rbac.role.remove", "user", in.UserID.String(), map[string]any{"role_id": in.RoleID.String()})
	s.invalidateUser(ctx, in.UserID)
	return nil
}

// GrantPermission grants a catalog permission directly to a user.
func (s *Service) GrantPermission(ctx context.Context, in PermissionGrant) error {
	name := normalizeName(in.Permission)
	if err := s.inTx(ctx, "grant permission", func(ctx context.Context, tx TxRepository) error {
		perm, err := permissionNamed(ctx, tx, name)
		if err != nil {
			return err
		}
		return tx.GrantUserPermission(ctx, in.UserID, perm.ID)
	}); err != nil {
		return err
	}
	s.record(ctx, in.ActorID, "rbac.permission.grant", "user", in.UserID.String(), map[string]any{"permission": name})
	s.invalidateUser(ctx, in.UserID)
	return nil
}

// RevokePermission removes a direct grant. Revoking a grant that does not
// exist is a no-op.
func (s *Service) RevokePermission(ctx context.Context, in PermissionGrant) error {
	name := normalizeName(in.Permission)
	if err := s.inTx(ctx, "revoke permission", func(ctx context.Context, tx TxRepository) error {
		perm, err := permissionNamed(ctx, tx, name)
		if err != nil {
			return err
		}
		return tx.RevokeUserPermission(ctx, in.UserID, perm.ID)
	}); err != nil {
		return err
	}
	s.record(ctx, in.ActorID, "rbac.permission.revoke", "user", in.UserID.String(), map[string]any{"permission": name})
	s.invalidateUser(ctx, in.UserID)
	return nil
}

// GrantRolePermission attaches a permission to a role.
func (s *Service) GrantRolePermission(ctx context.Context, in RolePermissionGrant) error {
	name := normalizeName(in.Permission)
	if err := s.inTx(ctx, "grant role permission", func(ctx context.Context, tx TxRepository) error {
		perm, err := permissionNamed(ctx, tx, name)
		if err != nil {
			return err
		}
		return tx.GrantRolePermission(ctx, in.RoleID, perm.ID)
	}); err != nil {
		return err
	}
	s.record(ctx, in.ActorID, "rbac.role_permission.grant", "role", in.RoleID.String(), map[string]any{"permission": name})
	s.invalidateAll(ctx)
	return nil
}

// RevokeRolePermission detaches a permission from a role.
func (s *Service) RevokeRolePermission(ctx context.Context, in RolePermissionGrant) error {
	name := normalizeName(in.Permission)
	if err := s.inTx(ctx, "revoke role permission", func(ctx context.Context, tx TxRepository) error {
		perm, err := permissionNamed(ctx, tx, name)
		if err != nil {
			return err
		}
		return tx.RevokeRolePermission(ctx, in.RoleID, perm.ID)
	}); err != nil {
		return err
	}
	s.record(ctx, in.ActorID, "rbac.role_permission.revoke", "role", in.RoleID.String(), map[string]any{"permission": name})
	s.invalidateAll(ctx)
	return nil
}

func permissionNamed(ctx context.Context, tx TxRepository, name string) (Permission, error) {
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name required", ErrInvalidDefinition)
	}
	perms, err := tx.PermissionsByName(ctx, []string{name})
	if err != nil {
		return Permission{}, err
	}
	if len(perms) == 0 {
		return Permission{}, fmt.Errorf("%w: permission %q", ErrNotFound, name)
	}
	return perms[0], nil
}

func normalizeName(name string) string {
	names := normalizePermissions([]string{name})
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// call runs a single store read under the query timeout and classifies its
// failure.
func call[T any](ctx context.Context, s *Service, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := s.boundedContext(ctx)
	defer cancel()
	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, storeFailure(op, err)
	}
	return v, nil
}

func (s *Service) inTx(ctx context.Context, op string, fn func(context.Context, TxRepository) error) error {
	ctx, cancel := s.boundedContext(ctx)
	defer cancel()
	return storeFailure(op, s.repo.WithTx(ctx, fn))
}

func (s *Service) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *Service) record(ctx context.Context, actor uuid.UUID, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("rbac audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidateUser(ctx context.Context, userID uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateUser(ctx, userID); err != nil {
		s.logger.Warn("rbac cache invalidate user", slog.String("user_id", userID.String()), slog.Any("error", err))
	}
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateAll(ctx); err != nil {
		s.logger.Warn("rbac cache invalidate all", slog.Any("error", err))
	}
}

func unionIDs(groups ...[]uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, group := range groups {
		for _, id := range group {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func permissionSetOf(perms []Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p.Name] = struct{}{}
	}
	return set
}
