package auth

import (
	"time"

	"github.com/growsome/growsome/internal/users"
)

// Session is the server-side record of a live login.
type Session struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	IP        string
	UserAgent string
}

// Valid reports whether the session is still usable at now.
func (s Session) Valid(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// NewSession carries the values persisted when a session is created.
type NewSession struct {
	UserID    int64
	Token     string
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

// Identity is the authenticated caller produced by the Resolver.
type Identity struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	Role      users.Role `json:"role"`
	Status    string     `json:"status"`
	Company   string     `json:"company,omitempty"`
	Position  string     `json:"position,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	SessionID int64      `json:"-"`
	ExpiresAt time.Time  `json:"sessionExpiresAt"`
}

func identityFromUser(u *users.User, sess Session) Identity {
	return Identity{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      u.Role,
		Status:    string(u.Status),
		Company:   u.Company,
		Position:  u.Position,
		Phone:     u.Phone,
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
	}
}
