package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenInvalid indicates an unknown or expired API token.
var ErrTokenInvalid = errors.New("shared: token invalid")

// TokenStore issues and resolves opaque bearer tokens backed by Redis.
// The dashboard exchanges credentials for a token elsewhere; this store only
// maps tokens to user IDs with a sliding TTL.
type TokenStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, prefix string, ttl time.Duration) *TokenStore {
	if prefix == "" {
		prefix = "aegis:token"
	}
	return &TokenStore{client: client, prefix: prefix, ttl: ttl}
}

// Issue creates a token for the given user.
func (s *TokenStore) Issue(ctx context.Context, userID int64) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("shared: generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := s.client.Set(ctx, s.key(token), strconv.FormatInt(userID, 10), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("shared: store token: %w", err)
	}
	return token, nil
}

// Resolve returns the user ID behind a token and refreshes its TTL.
func (s *TokenStore) Resolve(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrTokenInvalid
	}
	raw, err := s.client.Get(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrTokenInvalid
		}
		return 0, fmt.Errorf("shared: resolve token: %w", err)
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrTokenInvalid
	}
	if s.ttl > 0 {
		_ = s.client.Expire(ctx, s.key(token), s.ttl).Err()
	}
	return userID, nil
}

// Revoke deletes a token.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

func (s *TokenStore) key(token string) string {
	return s.prefix + ":" + token
}
