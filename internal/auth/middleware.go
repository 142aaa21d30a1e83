package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/growsome/growsome/internal/platform/httpx"
)

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the identity placed by Middleware.Authenticate.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}

// Middleware adapts the Resolver and Gate to net/http.
type Middleware struct {
	Resolver *Resolver
	Gate     *Gate
	Cookies  CookieConfig
	Logger   *slog.Logger
}

// Authenticate rejects requests without a valid session and stores the
// identity in the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := m.Cookies.Extract(r)
		id, err := m.Resolver.Resolve(r.Context(), creds)
		if err != nil {
			m.reject(w, r, creds, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// RequireAuthenticated guards routes mounted after Authenticate.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := m.Gate.RequireAuthenticated(IdentityFromContext(r.Context())); err != nil {
			m.reject(w, r, Credentials{}, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin guards admin-only routes mounted after Authenticate.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := m.Gate.RequireAdmin(IdentityFromContext(r.Context())); err != nil {
			m.reject(w, r, Credentials{}, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) reject(w http.ResponseWriter, r *http.Request, creds Credentials, err error) {
	status := HTTPStatus(err)
	logger := m.logger()
	switch status {
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
		logger.Error("auth resolution failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	default:
		logger.Debug("auth rejected", slog.String("path", r.URL.Path), slog.String("outcome", Outcome(err)))
	}
	// A cookie that can never authenticate again is dropped from the client.
	if status == http.StatusUnauthorized && creds.Source == SourceCookie {
		m.Cookies.Clear(w)
	}
	httpx.Error(w, status, PublicMessage(err))
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
