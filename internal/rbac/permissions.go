package rbac

import "fmt"

// permissionTable is the single source of truth for role capabilities.
// No other code path may assemble a PermissionSet.
var permissionTable = map[Role]PermissionSet{
	RoleAdmin: {
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
	},
	RoleCoordinator: {
		CanViewUsers:   true,
		CanCreateUsers: true,
		CanEditUsers:   true,

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
	},
	RoleFaculty: {
		CanViewResidents: true,
		CanViewSchedules: true,

		CanViewEvaluations:   true,
		CanCreateEvaluations: true,
		CanEditEvaluations:   true,

		CanAccessReports: true,
	},
	// Residents hold no administrative capability at all.
	RoleResident: {},
}

// PermissionsFor returns the canonical permission set for a role.
// An unknown role is a programming error and panics rather than
// silently defaulting to an empty set.
func PermissionsFor(role Role) PermissionSet {
	perms, ok := permissionTable[role]
	if !ok {
		panic(fmt.Sprintf("rbac: unknown role %q", role))
	}
	return perms
}
