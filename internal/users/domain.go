package users

import "time"

// Role is the coarse authorization attribute stored on a user.
type Role string

// Status marks whether an account may log in.
type Status string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"

	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an account record.
type User struct {
	ID int64
	// PasswordHash is nil for OAuth-only accounts.
	PasswordHash *string
	Email        string
	Username     string
	Role         Role
	Status       Status
	Company      string
	Position     string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive reports whether the account may hold sessions.
func (u *User) IsActive() bool {
	return u != nil && u.Status == StatusActive
}

// CreateParams describes a user provisioned by an administrator.
type CreateParams struct {
	Email        string
	PasswordHash *string
	Username     string
	Role         Role
}
