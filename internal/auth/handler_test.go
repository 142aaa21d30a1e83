package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/growsome/growsome/internal/shared"
	"github.com/growsome/growsome/internal/users"
)

const testPassword = "correct horse"

var errUnavailableForTest = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

type handlerFixture struct {
	store   *memStore
	users   *stubUsers
	audit   *recordingAuditor
	cookies CookieConfig
	router  http.Handler
}

func hashed(t *testing.T, password string) *string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	s := string(h)
	return &s
}

func newHandlerFixture(t *testing.T, loginLimit int, cookies CookieConfig) *handlerFixture {
	t.Helper()
	ana := activeUser(1, "ana@growsome.id", users.RoleUser)
	ana.PasswordHash = hashed(t, testPassword)
	owner := activeUser(2, "owner@growsome.id", users.RoleUser)
	owner.PasswordHash = hashed(t, testPassword)
	oauth := activeUser(3, "oauth@growsome.id", users.RoleUser)

	f := &handlerFixture{
		store:   newMemStore(time.Now),
		users:   newStubUsers(ana, owner, oauth),
		audit:   &recordingAuditor{},
		cookies: cookies,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec := NewTokenCodec("handler-secret", nil)
	lifecycle := NewLifecycle(codec, f.store, time.Hour)
	mw := Middleware{
		Resolver: NewResolver(codec, f.store, f.users),
		Gate:     NewGate("owner@growsome.id"),
		Cookies:  cookies,
		Logger:   logger,
	}
	svc := NewService(f.users, codec, lifecycle, f.audit, logger)
	h := NewHandler(logger, svc, mw, loginLimit)

	r := chi.NewRouter()
	r.Route("/api/auth", h.MountRoutes)
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(mw.Authenticate, mw.RequireAdmin)
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("pong"))
		})
	})
	f.router = r
	return f
}

func (f *handlerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rec := f.do(loginRequestFor(email, testPassword))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := findCookie(rec, DefaultCookieName)
	require.NotNil(t, cookie)
	return cookie
}

func loginRequestFor(email, password string) *http.Request {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withCookie(req *http.Request, c *http.Cookie) *http.Request {
	req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

// ===========================================================================
// Login
// ===========================================================================

func TestLoginSetsCookie(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})
	rec := f.do(loginRequestFor("ANA@growsome.id", testPassword))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookie := findCookie(rec, DefaultCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.InDelta(t, time.Hour.Seconds(), float64(cookie.MaxAge), 2)

	var body struct {
		User struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.User.ID)
	assert.Equal(t, "ana@growsome.id", body.User.Email)
	assert.Equal(t, []string{shared.AuditActionLogin}, f.audit.actions())
	assert.Equal(t, 1, f.store.countFor(1))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})
	cases := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong password", email: "ana@growsome.id", password: "nope"},
		{name: "unknown email", email: "ghost@growsome.id", password: testPassword},
		{name: "account without password", email: "oauth@growsome.id", password: testPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(loginRequestFor(tc.email, tc.password))
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "invalid email or password", errorBody(t, rec))
			assert.Nil(t, findCookie(rec, DefaultCookieName))
		})
	}
}

func TestLoginValidatesBody(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})
	for _, raw := range []string{`{`, `{"email":"not-an-email","password":"x"}`, `{"email":"a@b.co"}`, `{"email":"a@b.co","password":"x","extra":1}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(raw))
		rec := f.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}
}

func TestLoginUnavailable(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})
	f.users.err = errUnavailableForTest
	rec := f.do(loginRequestFor("ana@growsome.id", testPassword))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "authentication service unavailable", errorBody(t, rec))
}

func TestLoginRateLimited(t *testing.T) {
	f := newHandlerFixture(t, 1, CookieConfig{})
	rec := f.do(loginRequestFor("ana@growsome.id", "nope"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(loginRequestFor("ana@growsome.id", testPassword))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

// ===========================================================================
// Me / logout
// ===========================================================================

func TestMeRequiresSession(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication required", errorBody(t, rec))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestMeReturnsIdentity(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})
	cookie := f.login(t, "owner@growsome.id")

	rec := f.do(withCookie(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		User    Identity `json:"user"`
		IsAdmin bool     `json:"isAdmin"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "owner@growsome.id", body.User.Email)
	assert.True(t, body.IsAdmin)
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})
	cookie := f.login(t, "ana@growsome.id")

	rec := f.do(withCookie(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"revoked":1}`, rec.Body.String())
	cleared := findCookie(rec, DefaultCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	// The old cookie no longer authenticates and is cleared again.
	rec = f.do(withCookie(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), cookie))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session expired, please log in again", errorBody(t, rec))
	assert.NotNil(t, findCookie(rec, DefaultCookieName))

	// Logging out twice is fine.
	rec = f.do(withCookie(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"revoked":0}`, rec.Body.String())
	assert.Equal(t, []string{shared.AuditActionLogin, shared.AuditActionLogout}, f.audit.actions())
}

func TestLogoutWithoutCookie(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"revoked":0}`, rec.Body.String())
}

func TestLogoutAll(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})
	laptop := f.login(t, "ana@growsome.id")
	phone := f.login(t, "ana@growsome.id")

	rec := f.do(withCookie(httptest.NewRequest(http.MethodPost, "/api/auth/logout-all", nil), laptop))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"revoked":2}`, rec.Body.String())

	rec = f.do(withCookie(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), phone))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerFallback(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{AllowBearer: true})
	cookie := f.login(t, "ana@growsome.id")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Disabled by default.
	g := newHandlerFixture(t, 0, CookieConfig{})
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	rec = g.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ===========================================================================
// Admin gate
// ===========================================================================

func TestAdminRoute(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	user := f.login(t, "ana@growsome.id")
	rec = f.do(withCookie(httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil), user))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "admin access required", errorBody(t, rec))
	assert.Nil(t, findCookie(rec, DefaultCookieName), "forbidden must not clear the session cookie")

	owner := f.login(t, "owner@growsome.id")
	rec = f.do(withCookie(httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil), owner))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestAdminRouteStoreUnavailable(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})
	owner := f.login(t, "owner@growsome.id")
	f.store.fail(fmt.Errorf("%w: find session: %v", ErrUnavailable, errUnavailableForTest))

	rec := f.do(withCookie(httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil), owner))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "authentication service unavailable", errorBody(t, rec))
	assert.Nil(t, findCookie(rec, DefaultCookieName), "an outage must not log the user out")
}

func TestAuditFailureDoesNotBlockLogin(t *testing.T) {
	f := newHandlerFixture(t, 0, CookieConfig{})
	f.audit.err = errors.New("audit table missing")
	f.login(t, "ana@growsome.id")
}

func TestContextIdentityHelpers(t *testing.T) {
	assert.Nil(t, IdentityFromContext(context.Background()))
	ctx := ContextWithIdentity(context.Background(), Identity{ID: 9})
	require.NotNil(t, IdentityFromContext(ctx))
	assert.Equal(t, int64(9), IdentityFromContext(ctx).ID)
}
