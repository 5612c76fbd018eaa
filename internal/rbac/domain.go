package rbac

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Role represents a named bundle of permissions.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	IsSystem    bool
	// GrantsAll marks a role whose selector is the whole live catalog.
	GrantsAll bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission represents an atomic capability.
type Permission struct {
	ID          uuid.UUID
	Name        string
	Description string
	Deprecated  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RolePermission ties a permission to a role.
type RolePermission struct {
	RoleID       uuid.UUID
	PermissionID uuid.UUID
	CreatedAt    time.Time
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    uuid.UUID
	RoleID    uuid.UUID
	CreatedAt time.Time
}

// UserPermission grants a permission to a user directly, bypassing roles.
type UserPermission struct {
	UserID       uuid.UUID
	PermissionID uuid.UUID
	CreatedAt    time.Time
}

// Principal describes the authenticated actor. A nil *Principal is an
// anonymous visitor.
type Principal struct {
	ID uuid.UUID
}

// PermissionDefinition is a catalog entry applied by SyncPermissions.
type PermissionDefinition struct {
	Name        string
	Description string
	Deprecated  bool
}

// PermissionSelector is either the whole current catalog or an explicit list
// of permission names.
type PermissionSelector struct {
	all   bool
	names []string
}

// All selects every permission in the catalog at resolution time.
func All() PermissionSelector {
	return PermissionSelector{all: true}
}

// Explicit selects the named permissions.
func Explicit(names ...string) PermissionSelector {
	return PermissionSelector{names: append([]string(nil), names...)}
}

// IsAll reports whether the selector is the catalog sentinel.
func (s PermissionSelector) IsAll() bool {
	return s.all
}

// Names returns the explicit permission names; empty for All.
func (s PermissionSelector) Names() []string {
	if s.all {
		return nil
	}
	return append([]string(nil), s.names...)
}

// RoleDefinition declares a role and its permissions for DefineRoles.
type RoleDefinition struct {
	Name        string
	Description string
	IsSystem    bool
	Permissions PermissionSelector
}

// Catalog groups the permission and role definitions applied by Bootstrap.
type Catalog struct {
	Permissions []PermissionDefinition
	Roles       []RoleDefinition
}

// PermissionSet is an unordered set of permission names.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the given names.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Has reports whether name is in the set.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// HasAll reports whether every required name is present. An empty
// requirement is satisfied.
func (s PermissionSet) HasAll(required []string) bool {
	for _, r := range required {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one required name is present. An empty
// requirement is never satisfied.
func (s PermissionSet) HasAny(required []string) bool {
	for _, r := range required {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Names returns the set members sorted.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
