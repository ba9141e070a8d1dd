// Package memory is the read and write facade of the memory subsystem:
// envelope building and caching, fact writes, reinforcement, profile updates
// and background enrichment after a session closes.
package memory

import (
	"context"
	"errors"

	"github.com/hrygo/guildmind/plugin/ai/facts"
	"github.com/hrygo/guildmind/plugin/ai/pattern"
	"github.com/hrygo/guildmind/store"
)

// ErrInvalidScope is returned when a user or guild ID is blank.
var ErrInvalidScope = errors.New("memory: user_id and guild_id are required")

// MemoryService is consumed by the conversation orchestrator.
// Direct writes report success as a bool; failures are logged, never returned.
type MemoryService interface {
	// GetEnvelope returns the user's snapshot, served from cache within the TTL
	// unless forceRefresh is set.
	GetEnvelope(ctx context.Context, userID, guildID string, forceRefresh bool) (*Envelope, error)

	// FormatEnvelopeForLLM renders env deterministically. maxFacts <= 0 uses the configured default.
	FormatEnvelopeForLLM(env *Envelope, maxFacts int) string

	// ExtractFacts returns grounded facts from a session summary. Best effort.
	ExtractFacts(ctx context.Context, summary, userID string) []facts.Fact

	// AddFact stores a fact for the user.
	AddFact(ctx context.Context, userID, guildID string, fact facts.Fact) bool

	// AnalyzePatterns proposes profile updates. It never writes.
	AnalyzePatterns(ctx context.Context, summary, userID string, existing *store.UserProfile) *pattern.Proposal

	// ApplyProfileUpdates merges updates into the profile.
	ApplyProfileUpdates(ctx context.Context, userID, guildID string, updates pattern.ProfileUpdates) bool

	// ReinforceFact boosts the first stored fact matching factText.
	// boost <= 0 uses the configured default.
	ReinforceFact(ctx context.Context, userID, guildID, factText string, boost float64) bool

	// InvalidateCache drops the cached envelope of one scope.
	InvalidateCache(ctx context.Context, userID, guildID string) error
}
