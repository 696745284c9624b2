package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTokenStore(t *testing.T, ttl time.Duration) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewTokenStore(client, "test:token", ttl), mr
}

func TestTokenIssueAndResolve(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)
	ctx := context.Background()

	token, err := store.Issue(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(42), userID)
}

func TestTokenResolveUnknown(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)

	_, err := store.Resolve(context.Background(), "no-such-token")
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = store.Resolve(context.Background(), "")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenExpires(t *testing.T) {
	store, mr := newTokenStore(t, time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, 7)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenResolveSlidesTTL(t *testing.T) {
	store, mr := newTokenStore(t, time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, 7)
	require.NoError(t, err)

	// Touch the token just before expiry; the TTL resets each resolve.
	mr.FastForward(50 * time.Second)
	_, err = store.Resolve(ctx, token)
	require.NoError(t, err)

	mr.FastForward(50 * time.Second)
	userID, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(7), userID)
}

func TestTokenRevoke(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)
	ctx := context.Background()

	token, err := store.Issue(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, token))

	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	require.NoError(t, store.Revoke(ctx, token), "revoking twice is harmless")
}

func TestTokensAreUnique(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)
	ctx := context.Background()

	seen := map[string]bool{}
	for n := 0; n < 16; n++ {
		token, err := store.Issue(ctx, 1)
		require.NoError(t, err)
		require.False(t, seen[token])
		seen[token] = true
	}
}
