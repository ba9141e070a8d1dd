package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/guildmind/plugin/ai/aitime"
	"github.com/hrygo/guildmind/plugin/ai/cache"
)

// DefaultEnvelopeTTL is how long a built envelope may be served.
const DefaultEnvelopeTTL = 15 * time.Minute

// cacheEntry is the serialized form of a cached envelope.
type cacheEntry struct {
	Envelope *Envelope `json:"envelope"`
	CachedAt time.Time `json:"cached_at"`
}

// EnvelopeCache stores built envelopes keyed by (guild, user).
// Entry age is measured with the injected clock, so the backend's own expiry
// only reclaims space.
type EnvelopeCache struct {
	backend cache.CacheService
	clock   aitime.Clock
	ttl     time.Duration
}

// NewEnvelopeCache creates an EnvelopeCache. A non-positive ttl selects DefaultEnvelopeTTL.
func NewEnvelopeCache(backend cache.CacheService, clock aitime.Clock, ttl time.Duration) *EnvelopeCache {
	if ttl <= 0 {
		ttl = DefaultEnvelopeTTL
	}
	return &EnvelopeCache{
		backend: backend,
		clock:   aitime.OrSystem(clock),
		ttl:     ttl,
	}
}

// TTL returns the cache's time to live.
func (c *EnvelopeCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached envelope when it is younger than the TTL.
func (c *EnvelopeCache) Get(ctx context.Context, userID, guildID string) (*Envelope, bool) {
	data, ok := c.backend.Get(ctx, envelopeKey(userID, guildID))
	if !ok {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Envelope == nil {
		slog.Warn("discarding unreadable envelope cache entry",
			"user_id", userID,
			"guild_id", guildID,
			"error", err,
		)
		return nil, false
	}
	if c.clock.Now().Sub(entry.CachedAt) >= c.ttl {
		return nil, false
	}
	return entry.Envelope, true
}

// Put stores env stamped with the current time.
func (c *EnvelopeCache) Put(ctx context.Context, userID, guildID string, env *Envelope) error {
	data, err := json.Marshal(cacheEntry{Envelope: env, CachedAt: c.clock.Now()})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.backend.Set(ctx, envelopeKey(userID, guildID), data, c.ttl)
}

// Invalidate drops the envelope of one scope.
func (c *EnvelopeCache) Invalidate(ctx context.Context, userID, guildID string) error {
	return c.backend.Invalidate(ctx, envelopeKey(userID, guildID))
}

func envelopeKey(userID, guildID string) string {
	return fmt.Sprintf("envelope:%s:%s", guildID, userID)
}
