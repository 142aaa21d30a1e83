package auth

import (
	"context"
	"sync"
	"time"

	"github.com/growsome/growsome/internal/shared"
	"github.com/growsome/growsome/internal/users"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStore is an in-memory SessionStore keyed by token.
type memStore struct {
	mu     sync.Mutex
	seq    int64
	rows   map[string]Session
	now    func() time.Time
	err    error
	purged []time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{rows: map[string]Session{}, now: now}
}

func (m *memStore) Create(_ context.Context, in NewSession) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.seq++
	m.rows[in.Token] = Session{
		ID:        m.seq,
		UserID:    in.UserID,
		Token:     in.Token,
		ExpiresAt: in.ExpiresAt,
		CreatedAt: m.now(),
		IP:        in.IP,
		UserAgent: in.UserAgent,
	}
	return m.seq, nil
}

func (m *memStore) FindValid(_ context.Context, token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Session{}, m.err
	}
	sess, ok := m.rows[token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if !sess.Valid(m.now()) {
		return Session{}, ErrSessionExpired
	}
	return sess, nil
}

func (m *memStore) DeleteByUserAndToken(_ context.Context, userID int64, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	sess, ok := m.rows[token]
	if !ok || sess.UserID != userID {
		return 0, nil
	}
	delete(m.rows, token)
	return 1, nil
}

func (m *memStore) DeleteAllForUser(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for token, sess := range m.rows {
		if sess.UserID == userID {
			delete(m.rows, token)
			n++
		}
	}
	return n, nil
}

func (m *memStore) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = append(m.purged, cutoff)
	var n int64
	for token, sess := range m.rows {
		if !sess.ExpiresAt.After(cutoff) {
			delete(m.rows, token)
			n++
		}
	}
	return n, nil
}

func (m *memStore) countFor(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sess := range m.rows {
		if sess.UserID == userID {
			n++
		}
	}
	return n
}

func (m *memStore) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// stubUsers serves users by id and email.
type stubUsers struct {
	mu    sync.Mutex
	byID  map[int64]*users.User
	err   error
	calls int
}

func newStubUsers(list ...*users.User) *stubUsers {
	s := &stubUsers{byID: map[int64]*users.User{}}
	for _, u := range list {
		s.byID[u.ID] = u
	}
	return s
}

func (s *stubUsers) FindByID(_ context.Context, id int64) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubUsers) FindByEmail(_ context.Context, email string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.byID {
		if foldEmail(u.Email) == foldEmail(email) {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubUsers) remove(id int64) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []shared.AuditEntry
	err     error
}

func (r *recordingAuditor) Record(_ context.Context, e shared.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

func (r *recordingAuditor) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *countingObserver) ObserveAuth(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[outcome]++
}

func (o *countingObserver) count(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcomes[outcome]
}

func activeUser(id int64, email string, role users.Role) *users.User {
	return &users.User{ID: id, Email: email, Username: "user", Role: role, Status: users.StatusActive}
}
