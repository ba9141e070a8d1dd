// Package cache provides the byte-level cache used to hold built envelopes.
// An in-process LRU is always present; a Redis tier can be layered on top
// for multi-instance deployments.
package cache

import (
	"context"
	"time"
)

// CacheService defines the cache service interface.
type CacheService interface {
	// Get retrieves a value from cache.
	// Returns: value, whether it exists
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value in cache.
	// ttl: expiration time, <= 0 uses the implementation default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate invalidates cache entries.
	// pattern: exact key, or a trailing wildcard (envelope:guild:*)
	Invalidate(ctx context.Context, pattern string) error
}

// isWildcard reports whether pattern ends in '*', and returns the prefix.
func isWildcard(pattern string) (string, bool) {
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		return pattern[:n-1], true
	}
	return pattern, false
}
