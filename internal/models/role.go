package models

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleUser      Role = "user"
	RoleCEO       Role = "ceo"
	RoleAreaAdmin Role = "admin_area"
)

var allRoles = []Role{RoleAdmin, RoleUser, RoleCEO, RoleAreaAdmin}

func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole returns the role named by s and whether it is one of the known roles.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Authorize is the single authorization decision for role gates. Admin passes
// every gate; an empty requirement admits any known role.
func Authorize(role Role, required ...Role) bool {
	if !role.Valid() {
		return false
	}
	if role == RoleAdmin || len(required) == 0 {
		return true
	}
	for _, r := range required {
		if r == role {
			return true
		}
	}
	return false
}
