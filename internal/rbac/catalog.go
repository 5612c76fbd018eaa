package rbac

import (
	"fmt"
	"strings"

	"github.com/storefront-admin/storefront/internal/shared"
)

// System role names owned by the catalog.
const (
	RoleSuperAdmin = "Super Admin"
	RoleCustomer   = "Customer"
)

// DefaultCatalog returns the permission and role definitions shipped with
// the storefront.
func DefaultCatalog() Catalog {
	var perms []PermissionDefinition
	groups := [][]string{
		shared.CustomerScopes(),
		shared.PublicScopes(),
		shared.BackofficeScopes(),
		shared.CoreScopes(),
	}
	for _, group := range groups {
		for _, name := range group {
			perms = append(perms, PermissionDefinition{Name: name})
		}
	}

	customer := make([]string, 0, len(shared.CustomerScopes()))
	for _, name := range shared.CustomerScopes() {
		// Reviews are granted per customer once a purchase is delivered.
		if name == shared.PermReviewsSelfCreate {
			continue
		}
		customer = append(customer, name)
	}

	return Catalog{
		Permissions: perms,
		Roles: []RoleDefinition{
			{Name: RoleSuperAdmin, Description: "System Generated", IsSystem: true, Permissions: All()},
			{Name: RoleCustomer, Description: "Default customer role", IsSystem: true, Permissions: Explicit(customer...)},
		},
	}
}

// normalizePermissionDefinitions lowercases names and rejects empty or
// duplicate entries.
func normalizePermissionDefinitions(defs []PermissionDefinition) ([]PermissionDefinition, error) {
	seen := make(map[string]struct{}, len(defs))
	out := make([]PermissionDefinition, 0, len(defs))
	for _, def := range defs {
		def.Name = strings.TrimSpace(strings.ToLower(def.Name))
		def.Description = strings.TrimSpace(def.Description)
		if def.Name == "" {
			return nil, fmt.Errorf("%w: permission name required", ErrInvalidDefinition)
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate permission %q", ErrInvalidDefinition, def.Name)
		}
		seen[def.Name] = struct{}{}
		out = append(out, def)
	}
	return out, nil
}

func normalizeRoleDefinitions(defs []RoleDefinition) ([]RoleDefinition, error) {
	seen := make(map[string]struct{}, len(defs))
	out := make([]RoleDefinition, 0, len(defs))
	for _, def := range defs {
		def.Name = strings.TrimSpace(def.Name)
		def.Description = strings.TrimSpace(def.Description)
		if def.Name == "" {
			return nil, fmt.Errorf("%w: role name required", ErrInvalidDefinition)
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate role %q", ErrInvalidDefinition, def.Name)
		}
		seen[def.Name] = struct{}{}
		if !def.Permissions.IsAll() {
			def.Permissions = Explicit(normalizePermissions(def.Permissions.Names())...)
		}
		out = append(out, def)
	}
	return out, nil
}

// normalizePermissions trims, lowercases and de-duplicates names while
// keeping their first-seen order.
func normalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
