package users

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/growsome/growsome/internal/platform/db"
	"github.com/growsome/growsome/internal/shared"
)

// ErrEmailTaken indicates an account already uses the email.
var ErrEmailTaken = errors.New("users: email already registered")

const userColumns = `id, email, password, username, role, status, company, position, phone, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	conn db.DBTX
}

// NewRepository constructs a repository over a pool or transaction.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{conn: conn}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{conn: tx}
}

// FindByID fetches a user by primary key. Missing rows yield shared.ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	return scanUser(row)
}

// ListUsers returns one page of users ordered by id.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// CountUsers returns the number of accounts.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Create inserts a new user and returns it.
func (r *Repository) Create(ctx context.Context, params CreateParams) (*User, error) {
	role := params.Role
	if !role.Valid() {
		role = RoleUser
	}
	row := r.conn.QueryRow(ctx, `INSERT INTO users (email, password, username, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		strings.TrimSpace(params.Email), params.PasswordHash, params.Username, string(role), string(StatusActive))
	user, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		user   User
		role   string
		status string
	)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Username, &role, &status,
		&user.Company, &user.Position, &user.Phone, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user.Role = Role(role)
	user.Status = Status(status)
	return &user, nil
}
