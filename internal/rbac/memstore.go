package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type edgeSet map[uuid.UUID]map[uuid.UUID]struct{}

func (e edgeSet) add(left, right uuid.UUID) {
	if e[left] == nil {
		e[left] = make(map[uuid.UUID]struct{})
	}
	e[left][right] = struct{}{}
}

func (e edgeSet) remove(left, right uuid.UUID) {
	delete(e[left], right)
	if len(e[left]) == 0 {
		delete(e, left)
	}
}

func (e edgeSet) clone() edgeSet {
	out := make(edgeSet, len(e))
	for left, rights := range e {
		cp := make(map[uuid.UUID]struct{}, len(rights))
		for right := range rights {
			cp[right] = struct{}{}
		}
		out[left] = cp
	}
	return out
}

type memSnapshot struct {
	permissions map[uuid.UUID]Permission
	roles       map[uuid.UUID]Role
	rolePerms   edgeSet
	userRoles   edgeSet
	userPerms   edgeSet
}

func (s *memSnapshot) clone() *memSnapshot {
	out := &memSnapshot{
		permissions: make(map[uuid.UUID]Permission, len(s.permissions)),
		roles:       make(map[uuid.UUID]Role, len(s.roles)),
		rolePerms:   s.rolePerms.clone(),
		userRoles:   s.userRoles.clone(),
		userPerms:   s.userPerms.clone(),
	}
	for id, p := range s.permissions {
		out.permissions[id] = p
	}
	for id, r := range s.roles {
		out.roles[id] = r
	}
	return out
}

func (s *memSnapshot) permissionByName(name string) (Permission, bool) {
	for _, p := range s.permissions {
		if p.Name == name {
			return p, true
		}
	}
	return Permission{}, false
}

func (s *memSnapshot) roleByName(name string) (Role, bool) {
	for _, r := range s.roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// MemoryRepository keeps the catalogs and edges in process. Readers see an
// immutable snapshot; WithTx works on a copy and publishes it on success.
// User ids are not checked against an identity store.
type MemoryRepository struct {
	mu    sync.RWMutex
	state *memSnapshot
	txMu  sync.Mutex
	now   func() time.Time
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: &memSnapshot{
			permissions: map[uuid.UUID]Permission{},
			roles:       map[uuid.UUID]Role{},
			rolePerms:   edgeSet{},
			userRoles:   edgeSet{},
			userPerms:   edgeSet{},
		},
		now: time.Now,
	}
}

func (m *MemoryRepository) snapshot() *memSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// WithTx runs fn against a private copy of the state and publishes it only
// when fn succeeds.
func (m *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	work := &memTx{state: m.snapshot().clone(), now: m.now}
	if err := fn(ctx, work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.state = work.state
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.snapshot()
	perms := make([]Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		perms = append(perms, p)
	}
	sortPermissions(perms)
	return perms, nil
}

func (m *MemoryRepository) ListRoles(ctx context.Context) ([]Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.snapshot()
	roles := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		roles = append(roles, r)
	}
	sortRoles(roles)
	return roles, nil
}

func (m *MemoryRepository) RoleByName(ctx context.Context, name string) (Role, error) {
	if err := ctx.Err(); err != nil {
		return Role{}, err
	}
	role, ok := m.snapshot().roleByName(name)
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *MemoryRepository) RolesOf(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.snapshot()
	var roles []Role
	for roleID := range s.userRoles[userID] {
		if role, ok := s.roles[roleID]; ok {
			roles = append(roles, role)
		}
	}
	sortRoles(roles)
	return roles, nil
}

func (m *MemoryRepository) PermissionsOf(ctx context.Context, roleIDs []uuid.UUID) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.snapshot()
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, roleID := range roleIDs {
		for permID := range s.rolePerms[roleID] {
			if _, ok := seen[permID]; ok {
				continue
			}
			seen[permID] = struct{}{}
			ids = append(ids, permID)
		}
	}
	return ids, nil
}

func (m *MemoryRepository) DirectPermissionsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.snapshot()
	ids := make([]uuid.UUID, 0, len(s.userPerms[userID]))
	for permID := range s.userPerms[userID] {
		ids = append(ids, permID)
	}
	return ids, nil
}

func (m *MemoryRepository) PermissionsByID(ctx context.Context, ids []uuid.UUID) ([]Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.snapshot()
	var perms []Permission
	for _, id := range ids {
		if p, ok := s.permissions[id]; ok {
			perms = append(perms, p)
		}
	}
	sortPermissions(perms)
	return perms, nil
}

// DeletePermission drops a catalog entry while leaving the edges that point
// at it in place, the way an out-of-band catalog cleanup would.
func (m *MemoryRepository) DeletePermission(name string) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	next := m.snapshot().clone()
	if p, ok := next.permissionByName(name); ok {
		delete(next.permissions, p.ID)
	}
	m.mu.Lock()
	m.state = next
	m.mu.Unlock()
}

type memTx struct {
	state *memSnapshot
	now   func() time.Time
}

func (t *memTx) UpsertPermission(ctx context.Context, def PermissionDefinition) (Permission, error) {
	if err := ctx.Err(); err != nil {
		return Permission{}, err
	}
	if p, ok := t.state.permissionByName(def.Name); ok {
		if p.Description != def.Description || p.Deprecated != def.Deprecated {
			p.Description = def.Description
			p.Deprecated = def.Deprecated
			p.UpdatedAt = t.now()
			t.state.permissions[p.ID] = p
		}
		return p, nil
	}
	now := t.now()
	p := Permission{ID: uuid.New(), Name: def.Name, Description: def.Description, Deprecated: def.Deprecated, CreatedAt: now, UpdatedAt: now}
	t.state.permissions[p.ID] = p
	return p, nil
}

func (t *memTx) UpsertRole(ctx context.Context, def RoleDefinition) (Role, error) {
	if err := ctx.Err(); err != nil {
		return Role{}, err
	}
	grantsAll := def.Permissions.IsAll()
	if r, ok := t.state.roleByName(def.Name); ok {
		if r.Description != def.Description || r.IsSystem != def.IsSystem || r.GrantsAll != grantsAll {
			r.Description = def.Description
			r.IsSystem = def.IsSystem
			r.GrantsAll = grantsAll
			r.UpdatedAt = t.now()
			t.state.roles[r.ID] = r
		}
		return r, nil
	}
	now := t.now()
	r := Role{ID: uuid.New(), Name: def.Name, Description: def.Description, IsSystem: def.IsSystem, GrantsAll: grantsAll, CreatedAt: now, UpdatedAt: now}
	t.state.roles[r.ID] = r
	return r, nil
}

func (t *memTx) PermissionsByName(ctx context.Context, names []string) ([]Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var perms []Permission
	for _, name := range names {
		if p, ok := t.state.permissionByName(name); ok {
			perms = append(perms, p)
		}
	}
	sortPermissions(perms)
	return perms, nil
}

func (t *memTx) RolePermissionIDs(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for permID := range t.state.rolePerms[roleID] {
		ids = append(ids, permID)
	}
	return ids, nil
}

func (t *memTx) GrantRolePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	if err := t.requireRole(ctx, roleID); err != nil {
		return err
	}
	if err := t.requirePermission(permissionID); err != nil {
		return err
	}
	t.state.rolePerms.add(roleID, permissionID)
	return nil
}

func (t *memTx) RevokeRolePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.state.rolePerms.remove(roleID, permissionID)
	return nil
}

func (t *memTx) GrantUserRole(ctx context.Context, userID, roleID uuid.UUID) error {
	if err := t.requireRole(ctx, roleID); err != nil {
		return err
	}
	t.state.userRoles.add(userID, roleID)
	return nil
}

func (t *memTx) RevokeUserRole(ctx context.Context, userID, roleID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.state.userRoles.remove(userID, roleID)
	return nil
}

func (t *memTx) GrantUserPermission(ctx context.Context, userID, permissionID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.requirePermission(permissionID); err != nil {
		return err
	}
	t.state.userPerms.add(userID, permissionID)
	return nil
}

func (t *memTx) RevokeUserPermission(ctx context.Context, userID, permissionID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.state.userPerms.remove(userID, permissionID)
	return nil
}

func (t *memTx) requireRole(ctx context.Context, roleID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.state.roles[roleID]; !ok {
		return ErrNotFound
	}
	return nil
}

func (t *memTx) requirePermission(permissionID uuid.UUID) error {
	if _, ok := t.state.permissions[permissionID]; !ok {
		return ErrNotFound
	}
	return nil
}

func sortPermissions(perms []Permission) {
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
}

func sortRoles(roles []Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
}
