package auth

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/growsome/growsome/internal/users"
)

// Gate makes route-level admission decisions for resolved identities. The
// superuser email is always admitted as admin regardless of stored role; it
// is the bootstrap account.
type Gate struct {
	superuserEmail string
}

// NewGate builds a Gate. An empty superuserEmail disables the fallback.
func NewGate(superuserEmail string) *Gate {
	return &Gate{superuserEmail: foldEmail(superuserEmail)}
}

// foldEmail normalises an address for comparison. A Caser is stateful, so a
// fresh one is used per call.
func foldEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// RequireAuthenticated admits any resolved identity.
func (g *Gate) RequireAuthenticated(id *Identity) (Identity, error) {
	if id == nil || id.ID <= 0 {
		return Identity{}, ErrUnauthenticated
	}
	return *id, nil
}

// RequireAdmin admits identities with the admin role or the superuser email.
func (g *Gate) RequireAdmin(id *Identity) (Identity, error) {
	authed, err := g.RequireAuthenticated(id)
	if err != nil {
		return Identity{}, err
	}
	if g.IsAdmin(authed) {
		return authed, nil
	}
	return Identity{}, ErrForbidden
}

// IsAdmin reports whether id passes the admin rule.
func (g *Gate) IsAdmin(id Identity) bool {
	if id.Role == users.RoleAdmin {
		return true
	}
	if g.superuserEmail == "" {
		return false
	}
	return foldEmail(id.Email) == g.superuserEmail
}
