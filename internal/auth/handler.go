package auth

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/growsome/growsome/internal/platform/httpx"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	middleware Middleware
	validator  *validator.Validate
	loginLimit int
}

// NewHandler constructs a Handler instance. loginLimit caps login attempts per
// IP per minute; zero disables the limit.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		service:    service,
		middleware: mw,
		validator:  validator.New(),
		loginLimit: loginLimit,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.loginLimit > 0 {
			r.Use(httprate.Limit(h.loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post("/login", h.handleLogin)
	})
	r.Post("/logout", h.handleLogout)
	r.Group(func(r chi.Router) {
		r.Use(h.middleware.Authenticate, h.middleware.RequireAuthenticated)
		r.Get("/me", h.handleMe)
		r.Post("/logout-all", h.handleLogoutAll)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

type loginResponse struct {
	User      Identity  `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httpx.Error(w, http.StatusBadRequest, verrs[0].Field()+" is invalid")
			return
		}
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, issued, err := h.service.Login(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}

	h.middleware.Cookies.Set(w, issued.Token, issued.ExpiresAt)
	h.logger.Info("login", slog.Int64("user_id", user.ID), slog.Int64("session_id", issued.SessionID))
	httpx.JSON(w, http.StatusOK, loginResponse{
		User:      identityFromUser(user, Session{ID: issued.SessionID, ExpiresAt: issued.ExpiresAt}),
		ExpiresAt: issued.ExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	creds := h.middleware.Cookies.Extract(r)
	// The cookie is cleared even when revocation fails; the client is logged
	// out locally either way.
	h.middleware.Cookies.Clear(w)
	if creds.Empty() {
		httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "revoked": 0})
		return
	}
	n, err := h.service.Logout(r.Context(), creds.Token)
	if err != nil {
		h.fail(w, r, "logout", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "revoked": n})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	if id == nil {
		httpx.Error(w, http.StatusUnauthorized, PublicMessage(ErrUnauthenticated))
		return
	}
	n, err := h.service.LogoutEverywhere(r.Context(), *id)
	if err != nil {
		h.fail(w, r, "logout all", err)
		return
	}
	h.middleware.Cookies.Clear(w)
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "revoked": n})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	if id == nil {
		httpx.Error(w, http.StatusUnauthorized, PublicMessage(ErrUnauthenticated))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":    id,
		"isAdmin": h.middleware.Gate.IsAdmin(*id),
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Info(op+" rejected", slog.String("outcome", Outcome(err)))
	}
	httpx.Error(w, status, PublicMessage(err))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
