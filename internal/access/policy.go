package access

import "github.com/sheikh-saqib/service-hours-ledger/internal/models"

// IsAllowed reports whether a member holding actual may use something that
// requires required. Administrators reach supervisor areas; nothing else is
// inherited, so higher roles never see regular-member areas.
func IsAllowed(actual, required models.Role) bool {
	if actual == required {
		return true
	}
	return actual == models.RoleAdministrator && required == models.RoleSupervisor
}
