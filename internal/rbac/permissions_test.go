package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermissionsForIsPure(t *testing.T) {
	for _, role := range []Role{RoleAdmin, RoleCoordinator, RoleFaculty, RoleResident} {
		first := PermissionsFor(role)
		second := PermissionsFor(role)
		require.Equal(t, first, second, "role %s", role)
	}
}

func TestAdminHasEveryCapability(t *testing.T) {
	perms := PermissionsFor(RoleAdmin)
	require.Equal(t, PermissionSet{
		CanViewUsers:   true,
		CanCreateUsers: true,
		CanEditUsers:   true,
		CanDeleteUsers: true,

		CanViewResidents:   true,
		CanCreateResidents: true,
		CanEditResidents:   true,

		CanViewSchedules:   true,
		CanCreateSchedules: true,
		CanEditSchedules:   true,

		CanViewEvaluations:   true,
		CanCreateEvaluations: true,
		CanEditEvaluations:   true,

		CanAccessReports: true,
		CanExportData:    true,

		CanViewAuditLogs: true,
		CanManageSystem:  true,
	}, perms)
}

func TestResidentHasNoCapability(t *testing.T) {
	require.Equal(t, PermissionSet{}, PermissionsFor(RoleResident))
}

func TestCoordinatorLimits(t *testing.T) {
	perms := PermissionsFor(RoleCoordinator)
	require.True(t, perms.CanCreateUsers)
	require.True(t, perms.CanEditUsers)
	require.False(t, perms.CanDeleteUsers)
	require.False(t, perms.CanViewAuditLogs)
	require.False(t, perms.CanManageSystem)
}

func TestFacultyReadAndEvaluateOnly(t *testing.T) {
	perms := PermissionsFor(RoleFaculty)
	require.True(t, perms.CanViewResidents)
	require.True(t, perms.CanViewSchedules)
	require.True(t, perms.CanCreateEvaluations)
	require.True(t, perms.CanEditEvaluations)
	require.True(t, perms.CanAccessReports)
	require.False(t, perms.CanCreateUsers)
	require.False(t, perms.CanCreateResidents)
	require.False(t, perms.CanCreateSchedules)
	require.False(t, perms.CanExportData)
}

func TestUnknownRolePanics(t *testing.T) {
	require.Panics(t, func() { PermissionsFor(Role("janitor")) })
}

func TestRoleValid(t *testing.T) {
	require.True(t, RoleFaculty.Valid())
	require.False(t, Role("janitor").Valid())
}
