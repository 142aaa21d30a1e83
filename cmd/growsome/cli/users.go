package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/growsome/growsome/internal/platform/db"
	"github.com/growsome/growsome/internal/shared"
	"github.com/growsome/growsome/internal/users"
)

// Provisioner creates accounts.
type Provisioner interface {
	ProvisionUser(ctx context.Context, params users.CreateParams) (*users.User, error)
}

// PGProvisioner inserts the user and its audit row in one transaction.
type PGProvisioner struct {
	pool *pgxpool.Pool
}

// NewPGProvisioner constructs a PGProvisioner.
func NewPGProvisioner(pool *pgxpool.Pool) *PGProvisioner {
	return &PGProvisioner{pool: pool}
}

// ProvisionUser implements Provisioner.
func (p *PGProvisioner) ProvisionUser(ctx context.Context, params users.CreateParams) (*users.User, error) {
	var created *users.User
	err := db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		svc := users.NewService(users.NewRepository(tx))
		u, err := svc.Provision(ctx, params)
		if err != nil {
			return err
		}
		if err := shared.NewAuditLogger(tx).Record(ctx, shared.AuditEntry{
			ActorID:  u.ID,
			Action:   shared.AuditActionUserProvision,
			Entity:   shared.AuditEntityUser,
			EntityID: shared.EntityID(u.ID),
			Meta:     map[string]any{"role": string(u.Role), "source": "cli"},
		}); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		created = u
		return nil
	})
	return created, err
}

// UsersCLI offers account provisioning from the command line.
type UsersCLI struct {
	provisioner Provisioner
	hashCost    int
}

// NewUsersCLI constructs the helper.
func NewUsersCLI(p Provisioner) *UsersCLI {
	return &UsersCLI{provisioner: p, hashCost: bcrypt.DefaultCost}
}

// CreateUserOptions defines flags for the create-user command.
type CreateUserOptions struct {
	Email      string
	Password   string
	Username   string
	Role       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

type createUserSummary struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CreateUserCommand hashes the password and provisions the account. An empty
// password creates an account that cannot log in with a password.
func (c *UsersCLI) CreateUserCommand(ctx context.Context, opts CreateUserOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	email := strings.TrimSpace(opts.Email)
	if email == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "create-user: --email is required")
		return 1
	}
	role := users.Role(strings.ToLower(strings.TrimSpace(opts.Role)))
	if role == "" {
		role = users.RoleUser
	}
	if !role.Valid() {
		_, _ = fmt.Fprintf(opts.Stderr, "create-user: unknown role %q (expected user or admin)\n", opts.Role)
		return 1
	}

	params := users.CreateParams{Email: email, Username: strings.TrimSpace(opts.Username), Role: role}
	if opts.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), c.hashCost)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "create-user: hash password: %v\n", err)
			return 1
		}
		h := string(hash)
		params.PasswordHash = &h
	}

	u, err := c.provisioner.ProvisionUser(ctx, params)
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			_, _ = fmt.Fprintf(opts.Stderr, "create-user: %s is already registered\n", email)
			return 2
		}
		_, _ = fmt.Fprintf(opts.Stderr, "create-user: %v\n", err)
		return 1
	}

	summary := createUserSummary{ID: u.ID, Email: u.Email, Username: u.Username, Role: string(u.Role)}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "create-user: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "created user %d <%s> role=%s\n", summary.ID, summary.Email, summary.Role)
	return 0
}
