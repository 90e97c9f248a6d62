package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleUser   = "user"   // books and pays for consultations
	RoleExpert = "expert" // answers them
	RoleAdmin  = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// Valid reports whether role is one of the known roles.
func Valid(role string) bool {
	switch role {
	case RoleUser, RoleExpert, RoleAdmin:
		return true
	default:
		return false
	}
}
