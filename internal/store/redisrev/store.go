// Package redisrev implements the token denylist on Redis, for
// deployments where several API instances share one revocation list.
// Key expiry is delegated to Redis itself, so purge is a no-op.
package redisrev

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"identra.org/internal/auth"
)

const keyPrefix = "identra:revoked:"

// Store holds a Redis client.
type Store struct {
	rdb *redis.Client
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New constructs a Store over an existing client.
func New(rdb *redis.Client, opts ...Option) (*Store, error) {
	if rdb == nil {
		return nil, errors.New("redisrev: client is required")
	}
	s := &Store{rdb: rdb, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ auth.RevocationStore = (*Store)(nil)

func key(jti string) string {
	return keyPrefix + jti
}

// Revoke implements auth.RevocationStore. SET NX is atomic across
// instances: exactly one of any concurrent revokes of a jti creates
// the key, and a revoke is visible to the next IsRevoked anywhere.
func (s *Store) Revoke(ctx context.Context, rec auth.RevokedToken) (bool, error) {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		// The record could never matter; skip the write.
		return false, nil
	}
	return s.rdb.SetNX(ctx, key(rec.JTI), 1, ttl).Result()
}

// IsRevoked implements auth.RevocationStore.
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeExpired implements auth.RevocationStore. Redis drops expired
// keys on its own; nothing to do here.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
