package domain

// Role is the authorization class of a caller.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Identity is an authenticated caller.
type Identity struct {
	UserID string
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
