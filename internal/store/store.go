// Package store defines the Shared Store abstraction the rate limiter,
// circuit breaker, and config manager use to coordinate across gateway
// instances, plus a Redis-backed implementation and an in-memory fallback.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Store is the Shared Store contract. Every method takes a context so
// callers (the rate limiter, the breaker) can bound how long they're
// willing to wait before falling back to fail-open/local-only behavior.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// MultiSet writes all of kv atomically with the same ttl, used by the
	// distributed circuit breaker to publish state/failures/lastFailure/
	// nextAttempt as a single unit.
	MultiSet(ctx context.Context, kv map[string]string, ttl time.Duration) error
	Ping(ctx context.Context) error
}
