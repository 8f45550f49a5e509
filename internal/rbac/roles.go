package rbac

// Role names. Keep these stable; they are part of the dashboard's auth
// contract.
const (
	// RoleAdmin may run anything, including destructive queue maintenance.
	RoleAdmin = "admin"
	// RoleOperator runs the calling operation: enqueue, retry, seeding.
	RoleOperator = "operator"
	// RoleAnalyst reads attempts and responses but mutates nothing.
	RoleAnalyst = "analyst"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
