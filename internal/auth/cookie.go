package auth

import (
	"net/http"
	"strings"
	"time"
)

// DefaultCookieName is used when no cookie name is configured.
const DefaultCookieName = "auth_token"

// CredentialSource records where a token was found.
type CredentialSource string

const (
	SourceNone   CredentialSource = ""
	SourceCookie CredentialSource = "cookie"
	SourceBearer CredentialSource = "bearer"
)

// Credentials is the token extracted once at the HTTP boundary.
type Credentials struct {
	Token  string
	Source CredentialSource
}

// Empty reports whether no token was presented.
func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.Token) == ""
}

// CookieConfig describes the auth cookie contract.
type CookieConfig struct {
	Name     string
	Secure   bool
	SameSite http.SameSite
	TTL      time.Duration
	// AllowBearer enables the Authorization header fallback used by API clients.
	AllowBearer bool
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

func (c CookieConfig) sameSite() http.SameSite {
	if c.SameSite == 0 || c.SameSite == http.SameSiteDefaultMode {
		return http.SameSiteLaxMode
	}
	return c.SameSite
}

// Extract reads credentials from the request cookie, falling back to a
// bearer token when enabled.
func (c CookieConfig) Extract(r *http.Request) Credentials {
	if cookie, err := r.Cookie(c.name()); err == nil && cookie.Value != "" {
		return Credentials{Token: cookie.Value, Source: SourceCookie}
	}
	if c.AllowBearer {
		header := r.Header.Get("Authorization")
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			return Credentials{Token: strings.TrimSpace(header[7:]), Source: SourceBearer}
		}
	}
	return Credentials{}
}

// Set writes the auth cookie carrying token until expiresAt.
func (c CookieConfig) Set(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = int(c.TTL.Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	})
}

// Clear expires the auth cookie.
func (c CookieConfig) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	})
}
