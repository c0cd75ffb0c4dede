package queryx

import (
	"context"
	"fmt"
	"time"
)

// Cache is the interface for caching materialized result sets.
// Users implement this interface with their preferred backing store
// (e.g. Redis, Memcached, in-memory). Values are opaque byte slices;
// dialect/sql.BufferedRows provides a msgpack codec for row stores.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies a rendered statement for result caching.
// The key is derived from the statement text and its bound argument
// count, not from argument values; callers that cache per-binding
// results should append their own value digest.
type CacheKey struct {
	Dialect string
	SQL     string
	Args    int
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%d:%s", k.Dialect, k.Args, k.SQL)
}
