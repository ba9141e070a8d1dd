package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/guildmind/internal/profile"
	"github.com/hrygo/guildmind/plugin/ai"
	"github.com/hrygo/guildmind/plugin/ai/aitime"
	"github.com/hrygo/guildmind/plugin/ai/cache"
	"github.com/hrygo/guildmind/plugin/ai/decay"
	"github.com/hrygo/guildmind/plugin/ai/facts"
	"github.com/hrygo/guildmind/plugin/ai/pattern"
	"github.com/hrygo/guildmind/plugin/ai/timeout"
	"github.com/hrygo/guildmind/store"
)

// Config tunes the memory service.
type Config struct {
	EnvelopeTTL       time.Duration
	MaxFacts          int
	ReinforceBoost    float64
	EnrichmentWorkers int
	EnrichmentTimeout time.Duration
}

// DefaultConfig returns the default memory configuration.
func DefaultConfig() Config {
	return Config{
		EnvelopeTTL:       DefaultEnvelopeTTL,
		MaxFacts:          DefaultMaxFacts,
		ReinforceBoost:    decay.DefaultBoost,
		EnrichmentWorkers: 4,
		EnrichmentTimeout: timeout.EnrichmentTimeout,
	}
}

// ConfigFromProfile reads memory tuning from the process profile.
func ConfigFromProfile(p *profile.Profile) Config {
	cfg := DefaultConfig()
	if p.EnvelopeTTL > 0 {
		cfg.EnvelopeTTL = p.EnvelopeTTL
	}
	if p.MaxFacts > 0 {
		cfg.MaxFacts = p.MaxFacts
	}
	if p.ReinforceBoost > 0 {
		cfg.ReinforceBoost = p.ReinforceBoost
	}
	if p.EnrichmentWorkers > 0 {
		cfg.EnrichmentWorkers = p.EnrichmentWorkers
	}
	return cfg
}

// ProposalHandler receives pattern proposals that need user confirmation.
type ProposalHandler func(ctx context.Context, userID, guildID string, proposal *pattern.Proposal)

// Service implements MemoryService over a store and an envelope cache.
type Service struct {
	store     *store.Store
	builder   *Builder
	cache     *EnvelopeCache
	extractor *facts.Extractor
	analyzer  *pattern.Analyzer
	clock     aitime.Clock
	config    Config

	onProposal ProposalHandler
	slots      *semaphore.Weighted
	wg         sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source for envelopes, the cache and fact timestamps.
func WithClock(clock aitime.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.config = cfg }
}

// WithProposalHandler sets the receiver of proposals that need confirmation.
func WithProposalHandler(h ProposalHandler) Option {
	return func(s *Service) { s.onProposal = h }
}

// NewService creates a memory service. llm may be nil, which disables
// extraction and pattern analysis.
func NewService(s *store.Store, backend cache.CacheService, llm ai.LLMService, opts ...Option) *Service {
	svc := &Service{
		store:  s,
		clock:  aitime.System(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.clock = aitime.OrSystem(svc.clock)
	if svc.config.EnrichmentWorkers <= 0 {
		svc.config.EnrichmentWorkers = 1
	}
	if svc.onProposal == nil {
		svc.onProposal = logProposal
	}

	svc.builder = NewBuilder(s, svc.clock)
	svc.cache = NewEnvelopeCache(backend, svc.clock, svc.config.EnvelopeTTL)
	svc.slots = semaphore.NewWeighted(int64(svc.config.EnrichmentWorkers))
	if llm != nil {
		svc.extractor = facts.NewExtractor(llm)
		svc.analyzer = pattern.NewAnalyzer(llm)
	} else {
		slog.Warn("memory service initialized without LLM (fact extraction and pattern analysis disabled)")
	}
	return svc
}

// ========== Envelope ==========

// GetEnvelope implements MemoryService.
func (s *Service) GetEnvelope(ctx context.Context, userID, guildID string, forceRefresh bool) (*Envelope, error) {
	if err := validScope(userID, guildID); err != nil {
		return nil, err
	}
	if !forceRefresh {
		if env, ok := s.cache.Get(ctx, userID, guildID); ok {
			return env, nil
		}
	}

	env, err := s.builder.Build(ctx, userID, guildID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, userID, guildID, env); err != nil {
		slog.Warn("failed to cache envelope",
			"user_id", userID,
			"guild_id", guildID,
			"error", err,
		)
	}
	return env, nil
}

// FormatEnvelopeForLLM implements MemoryService.
func (s *Service) FormatEnvelopeForLLM(env *Envelope, maxFacts int) string {
	if maxFacts <= 0 {
		maxFacts = s.config.MaxFacts
	}
	return FormatForLLM(env, maxFacts)
}

// InvalidateCache implements MemoryService.
func (s *Service) InvalidateCache(ctx context.Context, userID, guildID string) error {
	if err := s.cache.Invalidate(ctx, userID, guildID); err != nil {
		slog.Warn("failed to invalidate envelope cache",
			"user_id", userID,
			"guild_id", guildID,
			"error", err,
		)
		return err
	}
	return nil
}

// ========== Facts ==========

// ExtractFacts implements MemoryService.
func (s *Service) ExtractFacts(ctx context.Context, summary, userID string) []facts.Fact {
	if s.extractor == nil {
		return []facts.Fact{}
	}
	return s.extractor.Extract(ctx, summary, userID)
}

// AddFact implements MemoryService. A fact whose text equals a stored one
// (ignoring case and surrounding space) reinforces the stored fact instead.
// Facts below the decay floor are rejected.
func (s *Service) AddFact(ctx context.Context, userID, guildID string, fact facts.Fact) bool {
	if validScope(userID, guildID) != nil {
		return false
	}
	text := strings.TrimSpace(fact.Text)
	if text == "" || fact.Confidence < decay.Floor {
		slog.Debug("fact not added",
			"user_id", userID,
			"guild_id", guildID,
			"confidence", fact.Confidence,
		)
		return false
	}

	existing, err := s.store.ListMemorableFacts(ctx, &store.FindMemorableFact{UserID: userID, GuildID: guildID})
	if err != nil {
		slog.Error("failed to list facts", "user_id", userID, "guild_id", guildID, "error", err)
		return false
	}
	for _, f := range existing {
		if f.Type == store.FactTypeUserFact && strings.EqualFold(f.Text, text) {
			return s.reinforce(ctx, userID, guildID, f, s.config.ReinforceBoost)
		}
	}

	factType := fact.Type
	if factType == "" {
		factType = store.FactTypeUserFact
	}
	now := s.clock.Now()
	if _, err := s.store.AppendMemorableFact(ctx, &store.MemorableFact{
		UserID:        userID,
		GuildID:       guildID,
		Text:          text,
		Type:          factType,
		Confidence:    fact.Confidence,
		Category:      fact.Category,
		Source:        fact.Source,
		AddedAt:       now,
		LastConfirmed: now,
	}); err != nil {
		slog.Error("failed to add fact", "user_id", userID, "guild_id", guildID, "error", err)
		return false
	}
	_ = s.InvalidateCache(ctx, userID, guildID)
	return true
}

// ReinforceFact implements MemoryService.
func (s *Service) ReinforceFact(ctx context.Context, userID, guildID, factText string, boost float64) bool {
	if validScope(userID, guildID) != nil {
		return false
	}
	if boost <= 0 {
		boost = s.config.ReinforceBoost
	}

	list, err := s.store.ListMemorableFacts(ctx, &store.FindMemorableFact{UserID: userID, GuildID: guildID})
	if err != nil {
		slog.Error("failed to list facts", "user_id", userID, "guild_id", guildID, "error", err)
		return false
	}
	match := decay.MatchFact(list, factText)
	if match == nil {
		return false
	}
	return s.reinforce(ctx, userID, guildID, match, boost)
}

func (s *Service) reinforce(ctx context.Context, userID, guildID string, f *store.MemorableFact, boost float64) bool {
	err := s.store.ReinforceMemorableFact(ctx, &store.ReinforceMemorableFact{
		ID:          f.ID,
		UserID:      userID,
		GuildID:     guildID,
		Boost:       boost,
		Ceiling:     decay.Ceiling,
		ConfirmedAt: s.clock.Now(),
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("failed to reinforce fact", "user_id", userID, "guild_id", guildID, "fact_id", f.ID, "error", err)
		}
		return false
	}
	slog.Debug("fact reinforced",
		"user_id", userID,
		"guild_id", guildID,
		"fact_id", f.ID,
		"confidence", decay.Reinforced(f.Confidence, boost),
	)
	_ = s.InvalidateCache(ctx, userID, guildID)
	return true
}

// ========== Profile ==========

// AnalyzePatterns implements MemoryService.
func (s *Service) AnalyzePatterns(ctx context.Context, summary, userID string, existing *store.UserProfile) *pattern.Proposal {
	if s.analyzer == nil {
		return nil
	}
	return s.analyzer.Analyze(ctx, summary, userID, existing)
}

// ApplyProfileUpdates implements MemoryService.
func (s *Service) ApplyProfileUpdates(ctx context.Context, userID, guildID string, updates pattern.ProfileUpdates) bool {
	if validScope(userID, guildID) != nil {
		return false
	}
	if updates.IsEmpty() {
		return true
	}
	if err := s.store.MergeUserProfile(ctx, pattern.ToMerge(userID, guildID, updates)); err != nil {
		slog.Error("failed to apply profile updates", "user_id", userID, "guild_id", guildID, "error", err)
		return false
	}
	_ = s.InvalidateCache(ctx, userID, guildID)
	return true
}

// ApplyProposal applies a proposal only when it does not need confirmation.
func (s *Service) ApplyProposal(ctx context.Context, userID, guildID string, proposal *pattern.Proposal) bool {
	if !proposal.CanAutoApply() {
		return false
	}
	return s.ApplyProfileUpdates(ctx, userID, guildID, proposal.ProposedUpdates)
}

// UpsertIdentity creates the profile on first contact or refreshes its name.
func (s *Service) UpsertIdentity(ctx context.Context, userID, guildID, name, nickname string) bool {
	if validScope(userID, guildID) != nil {
		return false
	}
	if _, err := s.store.UpsertUserProfile(ctx, &store.UpsertUserProfile{
		UserID:   userID,
		GuildID:  guildID,
		Name:     strings.TrimSpace(name),
		Nickname: strings.TrimSpace(nickname),
	}); err != nil {
		slog.Error("failed to upsert identity", "user_id", userID, "guild_id", guildID, "error", err)
		return false
	}
	_ = s.InvalidateCache(ctx, userID, guildID)
	return true
}

// PurgeProfile deletes the profile with its facts and shared narratives.
func (s *Service) PurgeProfile(ctx context.Context, userID, guildID string) bool {
	if validScope(userID, guildID) != nil {
		return false
	}
	if err := s.store.DeleteUserProfile(ctx, &store.DeleteUserProfile{UserID: userID, GuildID: guildID}); err != nil {
		slog.Error("failed to purge profile", "user_id", userID, "guild_id", guildID, "error", err)
		return false
	}
	_ = s.InvalidateCache(ctx, userID, guildID)
	return true
}

func validScope(userID, guildID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(guildID) == "" {
		return fmt.Errorf("%w: user=%q guild=%q", ErrInvalidScope, userID, guildID)
	}
	return nil
}

// Ensure Service implements MemoryService interface.
var _ MemoryService = (*Service)(nil)
