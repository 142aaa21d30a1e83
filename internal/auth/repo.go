package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/growsome/growsome/internal/platform/db"
)

// SessionStore is the durable record of live sessions backing revocation.
type SessionStore interface {
	// Create inserts a session row. Sessions are never deduplicated.
	Create(ctx context.Context, s NewSession) (int64, error)
	// FindValid returns the session for token if it has not expired.
	FindValid(ctx context.Context, token string) (Session, error)
	// DeleteByUserAndToken removes one session. Zero rows is not an error.
	DeleteByUserAndToken(ctx context.Context, userID int64, token string) (int64, error)
	// DeleteAllForUser removes every session of a user.
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
	// PurgeExpired removes sessions whose expiry is at or before cutoff.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGSessionStore implements SessionStore on the sessions table.
type PGSessionStore struct {
	conn    db.DBTX
	timeout time.Duration
	now     func() time.Time
}

// NewPGSessionStore constructs a PostgreSQL session store. timeout bounds
// every round trip; zero disables the bound.
func NewPGSessionStore(conn db.DBTX, timeout time.Duration) *PGSessionStore {
	return &PGSessionStore{conn: conn, timeout: timeout, now: time.Now}
}

func (s *PGSessionStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Create persists a new login session.
func (s *PGSessionStore) Create(ctx context.Context, in NewSession) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var id int64
	err := s.conn.QueryRow(ctx, `INSERT INTO sessions (user_id, token, expires_at, created_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		in.UserID,
		in.Token,
		pgtype.Timestamptz{Time: in.ExpiresAt.UTC(), Valid: true},
		pgtype.Timestamptz{Time: s.now().UTC(), Valid: true},
		pgtype.Text{String: in.IP, Valid: in.IP != ""},
		pgtype.Text{String: in.UserAgent, Valid: in.UserAgent != ""},
	).Scan(&id)
	if err != nil {
		return 0, storeError("create session", err)
	}
	return id, nil
}

// FindValid looks a session up by its exact token string.
func (s *PGSessionStore) FindValid(ctx context.Context, token string) (Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var (
		sess      Session
		ip, ua    pgtype.Text
		expiresAt pgtype.Timestamptz
		createdAt pgtype.Timestamptz
	)
	err := s.conn.QueryRow(ctx, `SELECT id, user_id, token, expires_at, created_at, ip, user_agent
		FROM sessions WHERE token = $1 ORDER BY expires_at DESC LIMIT 1`, token).
		Scan(&sess.ID, &sess.UserID, &sess.Token, &expiresAt, &createdAt, &ip, &ua)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, storeError("find session", err)
	}
	sess.ExpiresAt = expiresAt.Time
	sess.CreatedAt = createdAt.Time
	sess.IP = ip.String
	sess.UserAgent = ua.String
	if !sess.Valid(s.now()) {
		return Session{}, ErrSessionExpired
	}
	return sess, nil
}

// DeleteByUserAndToken removes a single session.
func (s *PGSessionStore) DeleteByUserAndToken(ctx context.Context, userID int64, token string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.conn.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1 AND token = $2`, userID, token)
	if err != nil {
		return 0, storeError("delete session", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAllForUser removes all sessions of userID.
func (s *PGSessionStore) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.conn.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, storeError("delete user sessions", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeExpired deletes sessions that expired at or before cutoff.
func (s *PGSessionStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.conn.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, pgtype.Timestamptz{Time: cutoff.UTC(), Valid: true})
	if err != nil {
		return 0, storeError("purge sessions", err)
	}
	return tag.RowsAffected(), nil
}

// storeError classifies driver errors; connectivity failures become ErrUnavailable.
func storeError(op string, err error) error {
	if db.IsUnavailable(err) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("auth: %s: %w", op, err)
}

var _ SessionStore = (*PGSessionStore)(nil)
