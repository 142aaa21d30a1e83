package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/growsome/growsome/internal/platform/db"
	"github.com/growsome/growsome/internal/shared"
	"github.com/growsome/growsome/internal/users"
)

// UserFinder loads user records for the resolver. Missing users must be
// reported as shared.ErrNotFound.
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*users.User, error)
}

// Observer receives the outcome label of every resolution.
type Observer interface {
	ObserveAuth(outcome string)
}

// Resolver turns inbound credentials into an Identity. It holds no mutable
// state besides the singleflight group and is safe for concurrent use.
type Resolver struct {
	codec    *TokenCodec
	store    SessionStore
	users    UserFinder
	timeout  time.Duration
	observer Observer
	group    singleflight.Group
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithLookupTimeout bounds the user lookup round trip.
func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// WithObserver reports every outcome to o.
func WithObserver(o Observer) ResolverOption {
	return func(r *Resolver) { r.observer = o }
}

// NewResolver wires the codec, session store and user lookup.
func NewResolver(codec *TokenCodec, store SessionStore, finder UserFinder, opts ...ResolverOption) *Resolver {
	r := &Resolver{codec: codec, store: store, users: finder}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve validates creds and returns the caller's identity. Every failure is
// one of the auth sentinel errors.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (Identity, error) {
	id, err := r.resolve(ctx, creds)
	if r.observer != nil {
		r.observer.ObserveAuth(Outcome(err))
	}
	return id, err
}

func (r *Resolver) resolve(ctx context.Context, creds Credentials) (Identity, error) {
	if creds.Empty() {
		return Identity{}, ErrUnauthenticated
	}
	claims, err := r.codec.Verify(creds.Token)
	if err != nil {
		return Identity{}, err
	}
	sess, err := r.store.FindValid(ctx, creds.Token)
	if err != nil {
		return Identity{}, err
	}
	if sess.UserID != claims.UserID {
		return Identity{}, fmt.Errorf("%w: session owner mismatch", ErrSessionNotFound)
	}
	user, err := r.loadUser(ctx, claims.UserID)
	if err != nil {
		return Identity{}, err
	}
	if !user.IsActive() {
		return Identity{}, ErrUserInactive
	}
	return identityFromUser(user, sess), nil
}

func (r *Resolver) loadUser(ctx context.Context, id int64) (*users.User, error) {
	// The lookup is shared by every caller waiting on id, so it must outlive
	// the request that started it. Each caller still stops on its own ctx.
	ch := r.group.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		lookupCtx := context.WithoutCancel(ctx)
		if r.timeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(lookupCtx, r.timeout)
			defer cancel()
		}
		return r.users.FindByID(lookupCtx, id)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: load user: %v", ErrUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			switch {
			case errors.Is(res.Err, shared.ErrNotFound):
				return nil, ErrUserNotFound
			case db.IsUnavailable(res.Err):
				return nil, fmt.Errorf("%w: load user: %v", ErrUnavailable, res.Err)
			default:
				return nil, fmt.Errorf("auth: load user: %w", res.Err)
			}
		}
		user, _ := res.Val.(*users.User)
		if user == nil {
			return nil, ErrUserNotFound
		}
		return user, nil
	}
}
