// Package idempotency remembers Idempotency-Key values of accepted requests in redis.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Key scoped to the user and the route, so different users may reuse the same client key
func (s *Store) Key(userID uuid.UUID, route string, clientKey string) string {
	return fmt.Sprintf("idem:%s:%s:%s", route, userID, clientKey)
}

// Acquire reserves the key for ttl.
// Returns false if the key is reserved already, i.e. the request is a duplicate.
func (s *Store) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency key acquire failed: %w", err)
	}

	return ok, nil
}

// Release drops the key so the request may be repeated
func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("idempotency key release failed: %w", err)
	}
	return nil
}
