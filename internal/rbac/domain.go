package rbac

// Role is a high-level permission grouping assigned to every profile.
type Role string

// Known roles. Profiles never carry a role outside this set.
const (
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleFaculty     Role = "faculty"
	RoleResident    Role = "resident"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoordinator, RoleFaculty, RoleResident:
		return true
	}
	return false
}

// PermissionSet is the fixed capability record stamped onto every profile.
// One canonical set exists per role; sets are never edited per user.
type PermissionSet struct {
	CanViewUsers   bool `json:"canViewUsers"`
	CanCreateUsers bool `json:"canCreateUsers"`
	CanEditUsers   bool `json:"canEditUsers"`
	CanDeleteUsers bool `json:"canDeleteUsers"`

	CanViewResidents   bool `json:"canViewResidents"`
	CanCreateResidents bool `json:"canCreateResidents"`
	CanEditResidents   bool `json:"canEditResidents"`

	CanViewSchedules   bool `json:"canViewSchedules"`
	CanCreateSchedules bool `json:"canCreateSchedules"`
	CanEditSchedules   bool `json:"canEditSchedules"`

	CanViewEvaluations   bool `json:"canViewEvaluations"`
	CanCreateEvaluations bool `json:"canCreateEvaluations"`
	CanEditEvaluations   bool `json:"canEditEvaluations"`

	CanAccessReports bool `json:"canAccessReports"`
	CanExportData    bool `json:"canExportData"`

	CanViewAuditLogs bool `json:"canViewAuditLogs"`
	CanManageSystem  bool `json:"canManageSystem"`
}
