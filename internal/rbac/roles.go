package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleAdmin may do everything, including manual transfers.
	RoleAdmin = "admin"
	// RoleOperator watches live calls and may bridge them by hand.
	RoleOperator = "operator"
	// RoleAnalyst has read-only access to call records.
	RoleAnalyst = "analyst"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleAnalyst:
		return true
	}
	return false
}
