package access

import (
	"testing"

	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
)

func TestIsAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		actual   models.Role
		required models.Role
		want     bool
	}{
		{models.RoleRegular, models.RoleRegular, true},
		{models.RoleRegular, models.RoleSupervisor, false},
		{models.RoleRegular, models.RoleAdministrator, false},
		{models.RoleSupervisor, models.RoleRegular, false},
		{models.RoleSupervisor, models.RoleSupervisor, true},
		{models.RoleSupervisor, models.RoleAdministrator, false},
		{models.RoleAdministrator, models.RoleRegular, false},
		{models.RoleAdministrator, models.RoleSupervisor, true},
		{models.RoleAdministrator, models.RoleAdministrator, true},
	}
	for _, tt := range tests {
		if got := IsAllowed(tt.actual, tt.required); got != tt.want {
			t.Errorf("IsAllowed(%s, %s) = %v, want %v", tt.actual, tt.required, got, tt.want)
		}
	}
}
