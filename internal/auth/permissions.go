package auth

// Permission represents a named capability on the installer API.
type Permission string

// Permission constants.
const (
	PermMeshRead       Permission = "mesh:read"
	PermMeshCommission Permission = "mesh:commission"
	PermMeshReset      Permission = "mesh:reset"
	PermAuditRead      Permission = "audit:read"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermMeshRead,
	},
	RoleInstaller: {
		PermMeshRead,
		PermMeshCommission,
	},
	RoleAdmin: {
		PermMeshRead,
		PermMeshCommission,
		PermMeshReset,
		PermAuditRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to a role,
// or nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
