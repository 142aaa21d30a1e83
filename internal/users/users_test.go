package users

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growsome/growsome/internal/shared"
)

type stubRepo struct {
	users   []User
	created []CreateParams
	err     error
}

func (s *stubRepo) FindByID(_ context.Context, id int64) (*User, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.users {
		if s.users[i].ID == id {
			return &s.users[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	for i := range s.users {
		if s.users[i].Email == email {
			return &s.users[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) ListUsers(_ context.Context, limit, offset int) ([]User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if offset >= len(s.users) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.users) {
		end = len(s.users)
	}
	return s.users[offset:end], nil
}

func (s *stubRepo) CountUsers(context.Context) (int, error) {
	return len(s.users), s.err
}

func (s *stubRepo) Create(_ context.Context, params CreateParams) (*User, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, params)
	return &User{ID: int64(len(s.users) + len(s.created)), Email: params.Email, Username: params.Username, Role: params.Role}, nil
}

func newTestRouter(repo RepositoryPort) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo))
	r := chi.NewRouter()
	r.Route("/api/admin/users", h.MountRoutes)
	return r
}

func TestProvisionDefaultsUsername(t *testing.T) {
	repo := &stubRepo{}
	u, err := NewService(repo).Provision(context.Background(), CreateParams{Email: " rina@growsome.id ", Role: RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "rina", u.Username)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "rina@growsome.id", repo.created[0].Email)
}

func TestProvisionValidates(t *testing.T) {
	svc := NewService(&stubRepo{})
	_, err := svc.Provision(context.Background(), CreateParams{Email: "nope"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Provision(context.Background(), CreateParams{Email: "a@b.c", Role: "root"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListUsersHandler(t *testing.T) {
	hash := "x"
	repo := &stubRepo{users: []User{
		{ID: 1, Email: "ana@growsome.id", Username: "ana", Role: RoleUser, Status: StatusActive, PasswordHash: &hash},
		{ID: 2, Email: "oauth@growsome.id", Username: "oauth", Role: RoleAdmin, Status: StatusActive},
	}}
	rec := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/users/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Users      []map[string]any  `json:"users"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Users, 2)
	assert.Equal(t, 2, body.Pagination.Total)
	assert.Equal(t, true, body.Users[0]["hasPassword"])
	assert.Equal(t, false, body.Users[1]["hasPassword"])
	assert.NotContains(t, rec.Body.String(), "password\"")
}

func TestListUsersPaginates(t *testing.T) {
	repo := &stubRepo{}
	for i := 1; i <= 5; i++ {
		repo.users = append(repo.users, User{ID: int64(i), Email: "u@growsome.id", Role: RoleUser, Status: StatusActive})
	}
	rec := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/users/?page=2&perPage=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Users      []userResponse    `json:"users"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Users, 2)
	assert.Equal(t, int64(3), body.Users[0].ID)
	assert.Equal(t, shared.Pagination{Page: 2, PerPage: 2, Total: 5, TotalPages: 3}, body.Pagination)
}

func TestGetUserHandler(t *testing.T) {
	repo := &stubRepo{users: []User{{ID: 1, Email: "ana@growsome.id", Role: RoleUser, Status: StatusActive}}}
	router := newTestRouter(repo)

	cases := []struct {
		path   string
		status int
	}{
		{path: "/api/admin/users/1", status: http.StatusOK},
		{path: "/api/admin/users/99", status: http.StatusNotFound},
		{path: "/api/admin/users/abc", status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.status, rec.Code, tc.path)
	}
}

func TestListUsersHandlerFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&stubRepo{err: errors.New("boom")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/users/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
