package auth

import "strings"

// Role is the closed set of caller roles.
type Role string

const (
	RoleClient     Role = "client"
	RoleProvider   Role = "provider"
	RoleSuperadmin Role = "superadmin"
)

// ParseRole returns the role named by s. Only the three known roles are
// accepted.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", false
	}
	return r, true
}

// Valid reports whether r is one of the known roles. Matching is exact.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleProvider, RoleSuperadmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }
