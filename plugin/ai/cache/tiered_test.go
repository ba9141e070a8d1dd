package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()

	rc, err := NewRedisCache(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr, rc := newTestRedis(t)

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, "envelope:g1:u1", []byte("payload"), time.Minute))
		val, ok := rc.Get(ctx, "envelope:g1:u1")
		require.True(t, ok)
		assert.Equal(t, []byte("payload"), val)
		assert.True(t, mr.Exists("guildmind:envelope:g1:u1"))
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, "short", []byte("x"), time.Minute))
		mr.FastForward(2 * time.Minute)
		_, ok := rc.Get(ctx, "short")
		assert.False(t, ok)
	})

	t.Run("InvalidateWildcard", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, "envelope:g2:u1", []byte("a"), 0))
		require.NoError(t, rc.Set(ctx, "envelope:g2:u2", []byte("b"), 0))
		require.NoError(t, rc.Set(ctx, "envelope:g3:u1", []byte("c"), 0))

		require.NoError(t, rc.Invalidate(ctx, "envelope:g2:*"))

		_, ok := rc.Get(ctx, "envelope:g2:u1")
		assert.False(t, ok)
		_, ok = rc.Get(ctx, "envelope:g2:u2")
		assert.False(t, ok)
		_, ok = rc.Get(ctx, "envelope:g3:u1")
		assert.True(t, ok)
	})

	t.Run("ConnectFailure", func(t *testing.T) {
		cfg := DefaultRedisConfig()
		cfg.Addr = "127.0.0.1:1"
		_, err := NewRedisCache(ctx, cfg)
		assert.Error(t, err)
	})
}

func TestTieredCache(t *testing.T) {
	ctx := context.Background()
	_, rc := newTestRedis(t)

	clock := newTestClock()
	l1 := NewService(ServiceConfig{DefaultTTL: time.Hour, Clock: clock})
	tiered := NewTieredCache(l1, rc)
	t.Cleanup(func() { _ = l1.Close() })

	t.Run("WriteThrough", func(t *testing.T) {
		require.NoError(t, tiered.Set(ctx, "k", []byte("v"), 0))
		_, ok := l1.Get(ctx, "k")
		assert.True(t, ok)
		_, ok = rc.Get(ctx, "k")
		assert.True(t, ok)
	})

	t.Run("PromoteFromL2", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, "only-l2", []byte("v2"), 0))
		val, ok := tiered.Get(ctx, "only-l2")
		require.True(t, ok)
		assert.Equal(t, []byte("v2"), val)

		_, ok = l1.Get(ctx, "only-l2")
		assert.True(t, ok)
	})

	t.Run("InvalidateBothTiers", func(t *testing.T) {
		require.NoError(t, tiered.Invalidate(ctx, "k"))
		_, ok := tiered.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("PeerInvalidationVisibleAfterL1TTL", func(t *testing.T) {
		peerL1 := NewService(ServiceConfig{DefaultTTL: time.Hour, Clock: clock})
		peer := NewTieredCache(peerL1, rc)
		t.Cleanup(func() { _ = peerL1.Close() })

		require.NoError(t, tiered.Set(ctx, "env", []byte("v"), 15*time.Minute))
		require.NoError(t, peer.Invalidate(ctx, "env"))

		// This instance still holds its own L1 copy.
		_, ok := tiered.Get(ctx, "env")
		assert.True(t, ok)

		clock.Advance(DefaultSharedL1TTL)
		_, ok = tiered.Get(ctx, "env")
		assert.False(t, ok)
	})

	t.Run("WithoutL2", func(t *testing.T) {
		local := NewService(DefaultServiceConfig())
		only := NewTieredCache(local, nil)
		t.Cleanup(func() { _ = only.Close() })

		require.NoError(t, only.Set(ctx, "a", []byte("1"), 0))
		_, ok := only.Get(ctx, "a")
		assert.True(t, ok)
		require.NoError(t, only.Invalidate(ctx, "*"))
		_, ok = only.Get(ctx, "a")
		assert.False(t, ok)
	})
}
