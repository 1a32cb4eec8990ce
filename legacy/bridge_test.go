package legacy_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-service/legacy"
	"github.com/jrsteele09/go-token-service/tokens"
	"github.com/jrsteele09/go-token-service/tokens/memstore"
	"github.com/jrsteele09/go-token-service/users"
	fakeuserrepo "github.com/jrsteele09/go-token-service/users/repofake"
	"github.com/stretchr/testify/require"
)

const testPassword = "hunter2hunter2"

type testFixture struct {
	users  users.Repo
	store  *memstore.Store
	bridge *legacy.Bridge
	now    time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		users: fakeuserrepo.NewFakeUserRepo(),
		store: memstore.New(),
		now:   time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
	}

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, f.users.Upsert(&users.User{Username: "alice", PasswordHash: hash}))

	bridge, err := legacy.New(f.users, f.store, legacy.WithNowFunc(func() time.Time { return f.now }))
	require.NoError(t, err)
	f.bridge = bridge
	return f
}

func TestExchange(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	at, err := f.bridge.Exchange(ctx, "alice", testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, at.Token)
	require.Empty(t, at.ApplicationID)
	require.Equal(t, tokens.ScopeWrite, at.Scope)

	// no refresh credential for legacy tokens
	count, err := f.store.CountRefreshTokens(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestExchangeBadCredentials(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.bridge.Exchange(ctx, "alice", "wrong")
	require.ErrorIs(t, err, legacy.ErrUnauthorized)

	_, err = f.bridge.Exchange(ctx, "nobody", testPassword)
	require.ErrorIs(t, err, legacy.ErrUnauthorized)
}

func TestResolveHeader(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	at, err := f.bridge.Exchange(ctx, "alice", testPassword)
	require.NoError(t, err)

	for _, header := range []string{"Token " + at.Token, "Bearer " + at.Token} {
		resolved, err := f.bridge.ResolveHeader(ctx, header)
		require.NoError(t, err)
		require.Equal(t, at.ID, resolved.ID)
	}
}

func TestResolveHeaderRejects(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	at, err := f.bridge.Exchange(ctx, "alice", testPassword)
	require.NoError(t, err)

	_, err = f.bridge.ResolveHeader(ctx, "")
	require.ErrorIs(t, err, legacy.ErrUnauthorized)

	_, err = f.bridge.ResolveHeader(ctx, "Basic dXNlcjpwYXNz")
	require.ErrorIs(t, err, legacy.ErrUnauthorized)

	_, err = f.bridge.ResolveHeader(ctx, "Bearer no-such-token")
	require.ErrorIs(t, err, legacy.ErrUnauthorized)

	// revoked access tokens are hard-deleted, so they stop resolving
	require.NoError(t, f.store.RevokeAccessToken(ctx, at.Token))
	_, err = f.bridge.ResolveHeader(ctx, "Token "+at.Token)
	require.ErrorIs(t, err, legacy.ErrUnauthorized)

	// expiry is enforced at resolution time
	at2, err := f.bridge.Exchange(ctx, "alice", testPassword)
	require.NoError(t, err)
	f.now = f.now.Add(2 * time.Hour)
	_, err = f.bridge.ResolveHeader(ctx, "Bearer "+at2.Token)
	require.ErrorIs(t, err, legacy.ErrUnauthorized)
}
