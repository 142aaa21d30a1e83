package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/growsome/growsome/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]User, error)
	CountUsers(ctx context.Context) (int, error)
	Create(ctx context.Context, params CreateParams) (*User, error)
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns the requested page of users with its pagination metadata.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	total, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, total)
	list, err := s.repo.ListUsers(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, p, nil
}

// Get returns a single user.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// Provision creates an account on behalf of an administrator.
func (s *Service) Provision(ctx context.Context, params CreateParams) (*User, error) {
	params.Email = strings.TrimSpace(params.Email)
	if params.Email == "" || !strings.Contains(params.Email, "@") {
		return nil, fmt.Errorf("%w: valid email required", shared.ErrValidation)
	}
	if params.Role != "" && !params.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", shared.ErrValidation, params.Role)
	}
	if params.Username == "" {
		params.Username = strings.SplitN(params.Email, "@", 2)[0]
	}
	return s.repo.Create(ctx, params)
}
