package auth

// Portal permissions, granted through roles.
const (
	PermEvaluationsRead = "evaluations.read"
	PermModelsRead      = "models.read"
	PermModelsImport    = "models.import"
	PermApprovalsRead   = "approvals.read"
	PermApprovalsSubmit = "approvals.submit"
	PermMonitoringRead  = "monitoring.read"
)

const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

var rolePermissions = map[string][]string{
	RoleViewer:   {PermEvaluationsRead, PermModelsRead, PermApprovalsRead, PermMonitoringRead},
	RoleOperator: {PermEvaluationsRead, PermModelsRead, PermModelsImport, PermApprovalsRead, PermApprovalsSubmit, PermMonitoringRead},
}

// Principal is the authenticated portal user.
type Principal struct {
	UserID string
	Name   string
	Roles  []string
}

// HasRole reports whether the principal holds role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether any of the principal's roles grants perm.
// Admins hold every permission.
func (p Principal) HasPermission(perm string) bool {
	for _, r := range p.Roles {
		if r == RoleAdmin {
			return true
		}
		for _, granted := range rolePermissions[r] {
			if granted == perm {
				return true
			}
		}
	}
	return false
}
