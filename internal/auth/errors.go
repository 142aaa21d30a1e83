package auth

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthenticated indicates the request carried no usable credentials.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrInvalidToken indicates a bad signature, malformed payload or an expired token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidClaims indicates claims that cannot be issued.
	ErrInvalidClaims = errors.New("auth: invalid claims")
	// ErrSessionNotFound indicates the token has no session row.
	ErrSessionNotFound = errors.New("auth: session not found")
	// ErrSessionExpired indicates the session row exists but its expiry has passed.
	ErrSessionExpired = errors.New("auth: session expired")
	// ErrUserNotFound indicates a live session whose user no longer exists.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrUserInactive indicates a live session whose user has been deactivated.
	ErrUserInactive = errors.New("auth: user inactive")
	// ErrForbidden indicates an authenticated identity lacking the required role.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrUnavailable indicates the session store or user database could not be reached.
	ErrUnavailable = errors.New("auth: unavailable")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// HTTPStatus maps an auth error to the status a route handler should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrUserInactive),
		errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing message for err. Session and user
// misses share one message so clients cannot tell which step failed.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnavailable):
		return "authentication service unavailable"
	case errors.Is(err, ErrForbidden):
		return "admin access required"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid email or password"
	case errors.Is(err, ErrUnauthenticated):
		return "authentication required"
	case HTTPStatus(err) == http.StatusUnauthorized:
		return "session expired, please log in again"
	default:
		return "internal error"
	}
}

// Outcome returns a short label for err used in logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrUserInactive):
		return "user_inactive"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
