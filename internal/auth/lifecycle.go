package auth

import (
	"context"
	"fmt"
	"time"
)

// LoginParams identifies the user a session is opened for.
type LoginParams struct {
	UserID    int64
	Email     string
	IP        string
	UserAgent string
}

// IssuedSession is returned to the login handler so it can set the cookie.
type IssuedSession struct {
	SessionID int64
	Token     string
	ExpiresAt time.Time
}

// Lifecycle owns the write path of the session store.
type Lifecycle struct {
	codec *TokenCodec
	store SessionStore
	ttl   time.Duration
}

// NewLifecycle constructs a Lifecycle issuing sessions valid for ttl.
func NewLifecycle(codec *TokenCodec, store SessionStore, ttl time.Duration) *Lifecycle {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Lifecycle{codec: codec, store: store, ttl: ttl}
}

// TTL exposes the configured session lifetime.
func (l *Lifecycle) TTL() time.Duration {
	return l.ttl
}

// Login issues a token and records a new session row. Existing sessions of
// the user are left untouched.
func (l *Lifecycle) Login(ctx context.Context, p LoginParams) (IssuedSession, error) {
	token, claims, err := l.codec.Issue(Claims{UserID: p.UserID, Email: p.Email}, l.ttl)
	if err != nil {
		return IssuedSession{}, err
	}
	id, err := l.store.Create(ctx, NewSession{
		UserID:    p.UserID,
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		IP:        p.IP,
		UserAgent: p.UserAgent,
	})
	if err != nil {
		return IssuedSession{}, fmt.Errorf("auth: login: %w", err)
	}
	return IssuedSession{SessionID: id, Token: token, ExpiresAt: claims.ExpiresAt}, nil
}

// Logout deletes the session identified by userID and token. Deleting
// nothing is not an error.
func (l *Lifecycle) Logout(ctx context.Context, userID int64, token string) (int64, error) {
	if userID <= 0 || token == "" {
		return 0, nil
	}
	n, err := l.store.DeleteByUserAndToken(ctx, userID, token)
	if err != nil {
		return 0, fmt.Errorf("auth: logout: %w", err)
	}
	return n, nil
}

// LogoutEverywhere deletes every session of userID.
func (l *Lifecycle) LogoutEverywhere(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, nil
	}
	n, err := l.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("auth: logout everywhere: %w", err)
	}
	return n, nil
}

// PurgeExpired removes sessions that expired at or before now.
func (l *Lifecycle) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := l.store.PurgeExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("auth: purge: %w", err)
	}
	return n, nil
}
