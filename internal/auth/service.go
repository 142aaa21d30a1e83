package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/growsome/growsome/internal/platform/db"
	"github.com/growsome/growsome/internal/shared"
	"github.com/growsome/growsome/internal/users"
)

// CredentialRepository loads accounts by email for password login.
type CredentialRepository interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
}

// Service wraps credential verification and session issuance for the login
// and logout handlers.
type Service struct {
	repo      CredentialRepository
	codec     *TokenCodec
	lifecycle *Lifecycle
	audit     shared.Auditor
	logger    *slog.Logger
}

// NewService constructs a new Service. A nil auditor disables audit records.
func NewService(repo CredentialRepository, codec *TokenCodec, lifecycle *Lifecycle, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, codec: codec, lifecycle: lifecycle, audit: audit, logger: logger}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		if db.IsUnavailable(err) {
			return nil, fmt.Errorf("%w: find user: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	if !user.IsActive() || user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*users.User, IssuedSession, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, IssuedSession{}, err
	}
	issued, err := s.lifecycle.Login(ctx, LoginParams{UserID: user.ID, Email: user.Email, IP: ip, UserAgent: userAgent})
	if err != nil {
		return nil, IssuedSession{}, err
	}
	s.record(ctx, shared.AuditEntry{
		ActorID:  user.ID,
		Action:   shared.AuditActionLogin,
		Entity:   shared.AuditEntitySession,
		EntityID: shared.EntityID(issued.SessionID),
		Meta:     map[string]any{"ip": ip, "user_agent": userAgent},
	})
	return user, issued, nil
}

// Logout revokes the session carried by token. Tokens that no longer verify
// have nothing to revoke and succeed silently.
func (s *Service) Logout(ctx context.Context, token string) (int64, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return 0, nil
	}
	n, err := s.lifecycle.Logout(ctx, claims.UserID, token)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.record(ctx, shared.AuditEntry{
			ActorID:  claims.UserID,
			Action:   shared.AuditActionLogout,
			Entity:   shared.AuditEntityUser,
			EntityID: shared.EntityID(claims.UserID),
		})
	}
	return n, nil
}

// LogoutEverywhere revokes all sessions of the identity.
func (s *Service) LogoutEverywhere(ctx context.Context, id Identity) (int64, error) {
	n, err := s.lifecycle.LogoutEverywhere(ctx, id.ID)
	if err != nil {
		return 0, err
	}
	s.record(ctx, shared.AuditEntry{
		ActorID:  id.ID,
		Action:   shared.AuditActionLogoutAll,
		Entity:   shared.AuditEntityUser,
		EntityID: shared.EntityID(id.ID),
		Meta:     map[string]any{"revoked": n},
	})
	return n, nil
}

func (s *Service) record(ctx context.Context, entry shared.AuditEntry) {
	// Audit failures never fail the auth operation.
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
