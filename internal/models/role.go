package models

// Role is a member's access level. Values match the persisted role ids.
type Role int

const (
	RoleRegular       Role = 1
	RoleSupervisor    Role = 2
	RoleAdministrator Role = 3
)

// SupervisoryRoles are the roles that count as supervising a group.
var SupervisoryRoles = []Role{RoleSupervisor, RoleAdministrator}

func (r Role) String() string {
	switch r {
	case RoleRegular:
		return "regular"
	case RoleSupervisor:
		return "supervisor"
	case RoleAdministrator:
		return "administrator"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r >= RoleRegular && r <= RoleAdministrator
}

// Supervisory reports whether r supervises groups rather than logging hours.
func (r Role) Supervisory() bool {
	return r == RoleSupervisor || r == RoleAdministrator
}

// ParseRole maps a role's String form back to the role.
func ParseRole(name string) (Role, bool) {
	for _, r := range []Role{RoleRegular, RoleSupervisor, RoleAdministrator} {
		if r.String() == name {
			return r, true
		}
	}
	return 0, false
}
