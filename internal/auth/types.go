package auth

import "errors"

// Role is the authorisation tier carried in an installer token.
type Role string

const (
	// RoleViewer can inspect pending devices, the session and the journal.
	RoleViewer Role = "viewer"

	// RoleInstaller can additionally start commissioning runs.
	RoleInstaller Role = "installer"

	// RoleAdmin can additionally reset the commissioning state.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role a token may carry, least privileged first.
var ValidRoles = []Role{RoleViewer, RoleInstaller, RoleAdmin}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// ParseRole converts a role name, rejecting unknown roles.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !IsValidRole(r) {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid   = errors.New("auth: invalid token")
	ErrInvalidRole    = errors.New("auth: invalid role")
	ErrSecretRequired = errors.New("auth: signing secret is required")
	ErrForbidden      = errors.New("auth: insufficient permissions")
)
