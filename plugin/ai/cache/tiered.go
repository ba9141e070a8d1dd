package cache

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSharedL1TTL caps how long L1 keeps an entry while an L2 is shared
// with other instances. An invalidation made elsewhere reaches this instance's
// L1 only when its copy expires, so this is the cross-instance staleness bound.
const DefaultSharedL1TTL = 30 * time.Second

// TieredCache composes the in-process LRU (L1) with an optional shared tier (L2).
//
// Reads check L1 first and promote L2 hits into L1. Writes and invalidations
// go to both tiers. Without an L2 it behaves exactly like the L1 service.
type TieredCache struct {
	l1    *Service
	l2    CacheService
	l1TTL time.Duration
}

// NewTieredCache creates a tiered cache. l2 may be nil.
func NewTieredCache(l1 *Service, l2 CacheService) *TieredCache {
	return &TieredCache{l1: l1, l2: l2, l1TTL: DefaultSharedL1TTL}
}

// localTTL bounds ttl by l1TTL when L2 is present.
func (t *TieredCache) localTTL(ttl time.Duration) time.Duration {
	if t.l2 == nil {
		return ttl
	}
	if ttl <= 0 || ttl > t.l1TTL {
		return t.l1TTL
	}
	return ttl
}

// Get retrieves a value from L1, then L2.
func (t *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := t.l1.Get(ctx, key); ok {
		return value, true
	}
	if t.l2 == nil {
		return nil, false
	}
	value, ok := t.l2.Get(ctx, key)
	if !ok {
		return nil, false
	}
	_ = t.l1.Set(ctx, key, value, t.localTTL(0))
	return value, true
}

// Set stores a value in both tiers. An L2 failure is logged and the L1 write stands.
func (t *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.l1.Set(ctx, key, value, t.localTTL(ttl)); err != nil {
		return err
	}
	if t.l2 != nil {
		if err := t.l2.Set(ctx, key, value, ttl); err != nil {
			slog.Warn("l2 cache set failed", "key", key, "error", err)
		}
	}
	return nil
}

// Invalidate removes matching entries from both tiers.
// L1 is always cleared; the L2 error, if any, is returned.
func (t *TieredCache) Invalidate(ctx context.Context, pattern string) error {
	if err := t.l1.Invalidate(ctx, pattern); err != nil {
		return err
	}
	if t.l2 != nil {
		return t.l2.Invalidate(ctx, pattern)
	}
	return nil
}

// Close closes both tiers.
func (t *TieredCache) Close() error {
	var err error
	if closer, ok := t.l2.(interface{ Close() error }); ok && t.l2 != nil {
		err = closer.Close()
	}
	if l1Err := t.l1.Close(); err == nil {
		err = l1Err
	}
	return err
}

var _ CacheService = (*TieredCache)(nil)
