package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growsome/growsome/internal/users"
)

func TestLogoutIsIdempotent(t *testing.T) {
	u := activeUser(5, "bo@growsome.id", users.RoleUser)
	f := newResolverFixture(t, u)
	issued := f.login(t, u)

	n, err := f.lifecycle.Logout(context.Background(), u.ID, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.lifecycle.Logout(context.Background(), u.ID, issued.Token)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.lifecycle.Logout(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLogoutIgnoresOtherUsersSession(t *testing.T) {
	ana := activeUser(5, "ana@growsome.id", users.RoleUser)
	bo := activeUser(6, "bo@growsome.id", users.RoleUser)
	f := newResolverFixture(t, ana, bo)
	issued := f.login(t, ana)

	n, err := f.lifecycle.Logout(context.Background(), bo.ID, issued.Token)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.resolver.Resolve(context.Background(), cookieCreds(issued.Token))
	require.NoError(t, err)
}

func TestConcurrentLoginsYieldIndependentSessions(t *testing.T) {
	u := activeUser(5, "bo@growsome.id", users.RoleUser)
	f := newResolverFixture(t, u)

	var wg sync.WaitGroup
	results := make([]IssuedSession, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			issued, err := f.lifecycle.Login(context.Background(), LoginParams{UserID: u.ID, Email: u.Email})
			assert.NoError(t, err)
			results[i] = issued
		}(i)
	}
	wg.Wait()

	require.NotEqual(t, results[0].Token, results[1].Token)
	assert.Equal(t, 2, f.store.countFor(u.ID))
	for _, issued := range results {
		_, err := f.resolver.Resolve(context.Background(), cookieCreds(issued.Token))
		require.NoError(t, err)
	}

	// Logging out one device leaves the other untouched.
	_, err := f.lifecycle.Logout(context.Background(), u.ID, results[0].Token)
	require.NoError(t, err)
	_, err = f.resolver.Resolve(context.Background(), cookieCreds(results[1].Token))
	require.NoError(t, err)
}

func TestLogoutEverywhere(t *testing.T) {
	u := activeUser(5, "bo@growsome.id", users.RoleUser)
	f := newResolverFixture(t, u)
	first := f.login(t, u)
	second := f.login(t, u)

	n, err := f.lifecycle.LogoutEverywhere(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, issued := range []IssuedSession{first, second} {
		_, err := f.resolver.Resolve(context.Background(), cookieCreds(issued.Token))
		require.ErrorIs(t, err, ErrSessionNotFound)
	}
}

func TestLoginPropagatesStoreFailure(t *testing.T) {
	u := activeUser(5, "bo@growsome.id", users.RoleUser)
	f := newResolverFixture(t, u)
	f.store.fail(ErrUnavailable)

	_, err := f.lifecycle.Login(context.Background(), LoginParams{UserID: u.ID, Email: u.Email})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestPurgeExpired(t *testing.T) {
	u := activeUser(5, "bo@growsome.id", users.RoleUser)
	f := newResolverFixture(t, u)
	f.login(t, u)
	f.clock.Advance(2 * time.Hour)
	live := f.login(t, u)

	n, err := f.lifecycle.PurgeExpired(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, f.store.countFor(u.ID))

	_, err = f.resolver.Resolve(context.Background(), cookieCreds(live.Token))
	require.NoError(t, err)
}

func TestNewLifecycleDefaultsTTL(t *testing.T) {
	l := NewLifecycle(NewTokenCodec("s", nil), newMemStore(time.Now), 0)
	assert.Equal(t, DefaultTokenTTL, l.TTL())
}
