package auth

const (
	PermLGPDViewUsers           = "LGPD_VIEW_USERS"
	PermLGPDViewLogs            = "LGPD_VIEW_LOGS"
	PermLGPDExportData          = "LGPD_EXPORT_DATA"
	PermLGPDRevertAnonymization = "LGPD_REVERT_ANONYMIZATION"
)

// PermAll is the wildcard granted to super admins; it matches every
// permission check.
const PermAll = "all"

const (
	RoleNone       = "none"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

var AllPermissions = []string{
	PermLGPDViewUsers,
	PermLGPDViewLogs,
	PermLGPDExportData,
	PermLGPDRevertAnonymization,
}

// Access is the resolved capability set for one user.
type Access struct {
	IsSuperAdmin bool
	IsAdmin      bool
	Permissions  []string
	Role         string
}

func (a Access) Has(permission string) bool {
	for _, granted := range a.Permissions {
		if granted == PermAll || granted == permission {
			return true
		}
	}
	return false
}
