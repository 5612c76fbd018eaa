package shared

// Platform permissions guarding the admin console and RBAC management.
const (
	PermAdminAccess = "admin:access"

	PermRolesRead        = "rbac:roles:any:read"
	PermRolesWrite       = "rbac:roles:any:write"
	PermPermissionsRead  = "rbac:permissions:any:read"
	PermPermissionsWrite = "rbac:permissions:any:write"

	PermSettingsRead   = "settings:global:read"
	PermSettingsUpdate = "settings:global:update"

	PermUsersRead   = "users:any:read"
	PermUsersUpdate = "users:any:update"
	PermUsersBan    = "users:any:ban"
)

// CoreScopes lists the platform permissions.
func CoreScopes() []string {
	return []string{
		PermAdminAccess,
		PermUsersRead,
		PermUsersUpdate,
		PermUsersBan,
		PermRolesRead,
		PermRolesWrite,
		PermPermissionsRead,
		PermPermissionsWrite,
		PermSettingsRead,
		PermSettingsUpdate,
	}
}
