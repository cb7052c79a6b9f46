package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is the response-memoization boundary. Implementations may be
// networked; callers must treat every failure as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, keys ...string) error
	// RemoveByPattern drops every key beginning with prefix. Used by callers
	// that need wider invalidation than TTL expiry.
	RemoveByPattern(ctx context.Context, prefix string) error
}
