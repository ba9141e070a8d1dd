package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/guildmind/plugin/ai"
	"github.com/hrygo/guildmind/plugin/ai/aitime"
	"github.com/hrygo/guildmind/plugin/ai/cache"
	"github.com/hrygo/guildmind/plugin/ai/decay"
	"github.com/hrygo/guildmind/plugin/ai/facts"
	"github.com/hrygo/guildmind/plugin/ai/pattern"
	"github.com/hrygo/guildmind/store"
	teststore "github.com/hrygo/guildmind/store/test"
)

var now = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *store.Store
	cache *cache.MockCacheService
	clock *aitime.MockClock
}

func newFixture(t *testing.T, llm ai.LLMService, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store: teststore.NewTestingStore(ctx, t),
		cache: cache.NewMockCacheService(),
		clock: aitime.NewMockClock(now),
	}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.svc = NewService(f.store, f.cache, llm, opts...)
	return f
}

func fact(text string, confidence float64) facts.Fact {
	return facts.Fact{
		Text:       text,
		Type:       store.FactTypeUserFact,
		Confidence: confidence,
		Category:   "general",
		Source:     facts.SourceLLMExtraction,
	}
}

func factTexts(env *Envelope) []string {
	out := []string{}
	for _, f := range env.Relational.Facts {
		out = append(out, f.Text)
	}
	return out
}

func TestGetEnvelope_MissingProfile(t *testing.T) {
	f := newFixture(t, nil)
	env, err := f.svc.GetEnvelope(context.Background(), "nobody", "g1", false)
	require.NoError(t, err)
	assert.Equal(t, "nobody", env.Identity.UserID)
	assert.Empty(t, env.Relational.Facts)
	assert.Empty(t, env.Relational.Domains)
	assert.NotNil(t, env.Relational.Preferences)
	assert.Nil(t, env.RecentContext)
}

func TestGetEnvelope_InvalidScope(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.GetEnvelope(context.Background(), "", "g1", false)
	assert.ErrorIs(t, err, ErrInvalidScope)
	assert.False(t, f.svc.AddFact(context.Background(), "u1", " ", fact("Works as a chef", 0.9)))
}

func TestGetEnvelope_CacheTTL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.True(t, f.svc.UpsertIdentity(ctx, "u1", "g1", "Ada", ""))

	first, err := f.svc.GetEnvelope(ctx, "u1", "g1", false)
	require.NoError(t, err)
	require.Empty(t, first.Relational.Facts)

	// A write that skips the facade leaves the cached envelope in place.
	_, err = f.store.AppendMemorableFact(ctx, &store.MemorableFact{
		UserID: "u1", GuildID: "g1", Text: "Plays the cello", Confidence: 0.8,
		AddedAt: now, LastConfirmed: now,
	})
	require.NoError(t, err)

	f.clock.Advance(DefaultEnvelopeTTL - time.Second)
	cached, err := f.svc.GetEnvelope(ctx, "u1", "g1", false)
	require.NoError(t, err)
	assert.Empty(t, cached.Relational.Facts)

	t.Run("force refresh bypasses cache", func(t *testing.T) {
		env, err := f.svc.GetEnvelope(ctx, "u1", "g1", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"Plays the cello"}, factTexts(env))
	})

	t.Run("expired entry is rebuilt", func(t *testing.T) {
		_, err = f.store.AppendMemorableFact(ctx, &store.MemorableFact{
			UserID: "u1", GuildID: "g1", Text: "Lives in Lisbon", Confidence: 0.9,
			AddedAt: now, LastConfirmed: now,
		})
		require.NoError(t, err)

		f.clock.Advance(DefaultEnvelopeTTL)
		env, err := f.svc.GetEnvelope(ctx, "u1", "g1", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"Plays the cello", "Lives in Lisbon"}, factTexts(env))
	})
}

func TestGetEnvelope_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.True(t, f.svc.UpsertIdentity(ctx, "u1", "g1", "Ada", "countess"))
	require.True(t, f.svc.AddFact(ctx, "u1", "g1", fact("Studies mathematics", 0.8)))
	require.True(t, f.svc.ApplyProfileUpdates(ctx, "u1", "g1", pattern.ProfileUpdates{
		Domains:     []string{"math"},
		Preferences: map[string]any{"tone": "formal", "length": 3},
	}))

	a, err := f.svc.GetEnvelope(ctx, "u1", "g1", false)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	b, err := f.svc.GetEnvelope(ctx, "u1", "g1", false)
	require.NoError(t, err)

	assert.Equal(t, f.svc.FormatEnvelopeForLLM(a, 0), f.svc.FormatEnvelopeForLLM(b, 0))
	assert.Contains(t, f.svc.FormatEnvelopeForLLM(b, 0), "Preferences: length=3, tone=formal")
}

func TestAddFact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	t.Run("round trip ranked by confidence", func(t *testing.T) {
		require.True(t, f.svc.AddFact(ctx, "u1", "g1", fact("Owns two cats", 0.6)))
		require.True(t, f.svc.AddFact(ctx, "u1", "g1", fact("Works as a chef", 0.9)))

		env, err := f.svc.GetEnvelope(ctx, "u1", "g1", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"Owns two cats", "Works as a chef"}, factTexts(env))

		out := f.svc.FormatEnvelopeForLLM(env, 10)
		assert.Less(t, strings.Index(out, "Works as a chef"), strings.Index(out, "Owns two cats"))
	})

	t.Run("write invalidates cached envelope", func(t *testing.T) {
		_, err := f.svc.GetEnvelope(ctx, "u1", "g1", false)
		require.NoError(t, err)

		require.True(t, f.svc.AddFact(ctx, "u1", "g1", fact("Speaks Portuguese", 0.7)))
		assert.Contains(t, f.cache.Invalidations(), "envelope:g1:u1")

		env, err := f.svc.GetEnvelope(ctx, "u1", "g1", false)
		require.NoError(t, err)
		assert.Contains(t, factTexts(env), "Speaks Portuguese")
	})

	t.Run("duplicate text reinforces", func(t *testing.T) {
		require.True(t, f.svc.AddFact(ctx, "u1", "g1", fact("  owns TWO cats ", 0.5)))

		list, err := f.store.ListMemorableFacts(ctx, &store.FindMemorableFact{UserID: "u1", GuildID: "g1"})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "Owns two cats", list[0].Text)
		assert.InDelta(t, 0.75, list[0].Confidence, 1e-9)
	})

	t.Run("below decay floor rejected", func(t *testing.T) {
		assert.False(t, f.svc.AddFact(ctx, "u1", "g1", fact("Maybe likes jazz", 0.29)))
		assert.False(t, f.svc.AddFact(ctx, "u1", "g1", fact("   ", 0.9)))
	})
}

func TestReinforceFact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.True(t, f.svc.AddFact(ctx, "u1", "g1", fact("Works as a nurse at the city hospital", 0.5)))
	require.True(t, f.svc.AddFact(ctx, "u1", "g1", fact("Works as a nurse on night shifts", 0.5)))

	confidences := func() []float64 {
		list, err := f.store.ListMemorableFacts(ctx, &store.FindMemorableFact{UserID: "u1", GuildID: "g1"})
		require.NoError(t, err)
		out := []float64{}
		for _, fact := range list {
			out = append(out, fact.Confidence)
		}
		return out
	}

	t.Run("first match only", func(t *testing.T) {
		f.clock.Advance(time.Hour)
		assert.True(t, f.svc.ReinforceFact(ctx, "u1", "g1", "WORKS AS A NURSE", 0))
		got := confidences()
		assert.InDelta(t, 0.65, got[0], 1e-9)
		assert.InDelta(t, 0.5, got[1], 1e-9)

		list, err := f.store.ListMemorableFacts(ctx, &store.FindMemorableFact{UserID: "u1", GuildID: "g1"})
		require.NoError(t, err)
		assert.Equal(t, now.Add(time.Hour).Unix(), list[0].LastConfirmed.Unix())
	})

	t.Run("bounded by ceiling", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			assert.True(t, f.svc.ReinforceFact(ctx, "u1", "g1", "nurse at the city hospital", 0))
			assert.LessOrEqual(t, confidences()[0], decay.Ceiling)
		}
		assert.InDelta(t, decay.Ceiling, confidences()[0], 1e-9)
	})

	t.Run("no match", func(t *testing.T) {
		before := confidences()
		assert.False(t, f.svc.ReinforceFact(ctx, "u1", "g1", "owns a yacht", 0))
		assert.False(t, f.svc.ReinforceFact(ctx, "u2", "g1", "nurse", 0))
		assert.Equal(t, before, confidences())
	})
}

func TestApplyProfileUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.True(t, f.svc.ApplyProfileUpdates(ctx, "u1", "g1", pattern.ProfileUpdates{
		Domains:       []string{"Go", "Rust"},
		Preferences:   map[string]any{"tone": "casual", "detail": "brief"},
		LearningLevel: "beginner",
	}))
	require.True(t, f.svc.ApplyProfileUpdates(ctx, "u1", "g1", pattern.ProfileUpdates{
		Domains:       []string{"go", "Kubernetes"},
		Preferences:   map[string]any{"tone": "formal"},
		LearningLevel: "advanced",
	}))

	env, err := f.svc.GetEnvelope(ctx, "u1", "g1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "Rust", "Kubernetes"}, env.Relational.Domains)
	assert.Equal(t, map[string]any{"tone": "formal", "detail": "brief"}, env.Relational.Preferences)
	assert.Equal(t, "advanced", env.Relational.LearningLevel)

	t.Run("proposal needing confirmation is not applied", func(t *testing.T) {
		proposal := &pattern.Proposal{
			ProposedUpdates:      pattern.ProfileUpdates{Domains: []string{"Haskell"}},
			Confidence:           0.65,
			RequiresConfirmation: true,
		}
		assert.False(t, f.svc.ApplyProposal(ctx, "u1", "g1", proposal))

		env, err := f.svc.GetEnvelope(ctx, "u1", "g1", true)
		require.NoError(t, err)
		assert.NotContains(t, env.Relational.Domains, "Haskell")
	})
}

func TestRecentContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for i, summary := range []string{"Talked about sourdough.", "Planned a trip to Porto."} {
		s, err := f.store.CreateSession(ctx, &store.Session{UserID: "u1", GuildID: "g1", ChannelID: "c1", CreatedAt: now})
		require.NoError(t, err)
		require.NoError(t, f.store.CloseSession(ctx, &store.CloseSession{
			ID:       s.ID,
			Summary:  summary,
			ClosedAt: now.Add(time.Duration(i+1) * time.Hour),
		}))
	}

	env, err := f.svc.GetEnvelope(ctx, "u1", "g1", false)
	require.NoError(t, err)
	require.NotNil(t, env.RecentContext)
	assert.Equal(t, "Planned a trip to Porto.", env.RecentContext.Summary)
	assert.True(t, strings.HasSuffix(f.svc.FormatEnvelopeForLLM(env, 0), "Last session: Planned a trip to Porto.\n"))
}

func TestPurgeProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.True(t, f.svc.AddFact(ctx, "u1", "g1", fact("Works as a chef", 0.9)))
	_, err := f.svc.GetEnvelope(ctx, "u1", "g1", false)
	require.NoError(t, err)

	require.True(t, f.svc.PurgeProfile(ctx, "u1", "g1"))
	env, err := f.svc.GetEnvelope(ctx, "u1", "g1", false)
	require.NoError(t, err)
	assert.Empty(t, env.Relational.Facts)
}

func TestOnSessionClosed(t *testing.T) {
	const summary = "User said they recently adopted a greyhound and asked for training tips in a casual tone."

	llm := &ai.MockLLMService{
		ChatFunc: func(_ context.Context, messages []ai.Message) (string, error) {
			if strings.Contains(messages[0].Content, "extract durable facts") {
				return `[
					{"text": "User adopted a greyhound", "confidence": 0.9, "category": "pets"},
					{"text": "User owns a yacht", "confidence": 0.9}
				]`, nil
			}
			return `{"domains": ["dog training"], "preferences": {"tone": "casual"}, "confidence": 0.85}`, nil
		},
	}

	t.Run("auto-applies confident proposals", func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t, llm)
		require.True(t, f.svc.OnSessionClosed("u1", "g1", summary))
		f.svc.Wait()

		env, err := f.svc.GetEnvelope(ctx, "u1", "g1", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"User adopted a greyhound"}, factTexts(env))
		assert.Equal(t, facts.SourceLLMExtraction, env.Relational.Facts[0].Source)
		assert.Equal(t, []string{"dog training"}, env.Relational.Domains)
		assert.Equal(t, "casual", env.Relational.Preferences["tone"])
	})

	t.Run("routes unconfirmed proposals to handler", func(t *testing.T) {
		ctx := context.Background()
		unsure := &ai.MockLLMService{
			ChatFunc: func(_ context.Context, messages []ai.Message) (string, error) {
				if strings.Contains(messages[0].Content, "extract durable facts") {
					return "[]", nil
				}
				return `{"domains": ["dog training"], "confidence": 0.65}`, nil
			},
		}
		var got *pattern.Proposal
		f := newFixture(t, unsure, WithProposalHandler(func(_ context.Context, _, _ string, p *pattern.Proposal) {
			got = p
		}))
		require.True(t, f.svc.OnSessionClosed("u1", "g1", summary))
		f.svc.Wait()

		require.NotNil(t, got)
		assert.True(t, got.RequiresConfirmation)
		env, err := f.svc.GetEnvelope(ctx, "u1", "g1", true)
		require.NoError(t, err)
		assert.Empty(t, env.Relational.Domains)
	})

	t.Run("drops work when saturated", func(t *testing.T) {
		release := make(chan struct{})
		blocking := &ai.MockLLMService{
			ChatFunc: func(ctx context.Context, _ []ai.Message) (string, error) {
				<-release
				return "[]", nil
			},
		}
		cfg := DefaultConfig()
		cfg.EnrichmentWorkers = 1
		f := newFixture(t, blocking, WithConfig(cfg))

		require.True(t, f.svc.OnSessionClosed("u1", "g1", summary))
		assert.False(t, f.svc.OnSessionClosed("u2", "g1", summary))
		close(release)
		f.svc.Wait()
	})

	t.Run("disabled without llm", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.False(t, f.svc.OnSessionClosed("u1", "g1", summary))
	})
}
