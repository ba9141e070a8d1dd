package pattern

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/guildmind/plugin/ai"
	"github.com/hrygo/guildmind/store"
)

const summary = "User asked detailed questions about Kubernetes operators and preferred short answers."

func TestAnalyze_ConfidenceGate(t *testing.T) {
	tests := []struct {
		name         string
		confidence   string
		wantNil      bool
		wantConfirm  bool
		wantAutoable bool
	}{
		{name: "discarded", confidence: "0.59", wantNil: true},
		{name: "lower bound needs confirmation", confidence: "0.6", wantConfirm: true},
		{name: "needs confirmation", confidence: "0.65", wantConfirm: true},
		{name: "auto apply at threshold", confidence: "0.8", wantAutoable: true},
		{name: "auto apply", confidence: "0.93", wantAutoable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := ai.NewMockLLMService(`{"domains": ["kubernetes"], "confidence": ` + tt.confidence + `}`)
			got := NewAnalyzer(llm).Analyze(context.Background(), summary, "u1", nil)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantConfirm, got.RequiresConfirmation)
			assert.Equal(t, tt.wantAutoable, got.CanAutoApply())
			assert.Equal(t, []string{"kubernetes"}, got.ProposedUpdates.Domains)
		})
	}
}

func TestAnalyze_ShortSummary(t *testing.T) {
	llm := ai.NewMockLLMService(`{"domains": ["go"], "confidence": 0.9}`)
	assert.Nil(t, NewAnalyzer(llm).Analyze(context.Background(), "User likes Go a lot.", "u1", nil))
	assert.Zero(t, llm.CallCount())
}

func TestAnalyze_BestEffort(t *testing.T) {
	tests := []struct {
		name string
		llm  *ai.MockLLMService
	}{
		{name: "provider error", llm: &ai.MockLLMService{Errors: []error{errors.New("timeout")}}},
		{name: "prose", llm: ai.NewMockLLMService("The user seems technical.")},
		{name: "missing confidence", llm: ai.NewMockLLMService(`{"domains": ["go"]}`)},
		{name: "broken json", llm: ai.NewMockLLMService(`{"domains": [go], "confidence": 0.9}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, NewAnalyzer(tt.llm).Analyze(context.Background(), summary, "u1", nil))
		})
	}
}

func TestAnalyze_OnlyNewTraits(t *testing.T) {
	existing := &store.UserProfile{
		Domains:       []string{"Kubernetes", "Go"},
		Preferences:   map[string]any{"tone": "casual"},
		LearningLevel: "advanced",
	}

	t.Run("known traits yield no proposal", func(t *testing.T) {
		llm := ai.NewMockLLMService(`{"domains": ["kubernetes", "GO"], "learning_level": "Advanced", "confidence": 0.9}`)
		assert.Nil(t, NewAnalyzer(llm).Analyze(context.Background(), summary, "u1", existing))
	})

	t.Run("new traits kept", func(t *testing.T) {
		llm := ai.NewMockLLMService("```json\n" + `{"proposed_updates": {"domains": ["go", "Operators"], "preferences": {"detail": "brief", "": "x"}, "learning_level": "expert"}, "confidence": 0.85}` + "\n```")
		got := NewAnalyzer(llm).Analyze(context.Background(), summary, "u1", existing)
		require.NotNil(t, got)
		assert.Equal(t, ProfileUpdates{
			Domains:       []string{"Operators"},
			Preferences:   map[string]any{"detail": "brief"},
			LearningLevel: "expert",
		}, got.ProposedUpdates)
		assert.False(t, got.RequiresConfirmation)
	})

	t.Run("existing profile is sent as context", func(t *testing.T) {
		llm := ai.NewMockLLMService("{}")
		NewAnalyzer(llm).Analyze(context.Background(), summary, "u1", existing)
		calls := llm.Calls()
		require.Len(t, calls, 1)
		user := calls[0][len(calls[0])-1].Content
		assert.Contains(t, user, "Known domains: Kubernetes, Go")
		assert.Contains(t, user, "tone=casual")
		assert.Contains(t, user, summary)
	})
}

func TestToMerge(t *testing.T) {
	merge := ToMerge("u1", "g1", ProfileUpdates{Domains: []string{"go"}})
	assert.Equal(t, "u1", merge.UserID)
	assert.Equal(t, "g1", merge.GuildID)
	assert.Nil(t, merge.LearningLevel)

	merge = ToMerge("u1", "g1", ProfileUpdates{LearningLevel: "beginner"})
	require.NotNil(t, merge.LearningLevel)
	assert.Equal(t, "beginner", *merge.LearningLevel)
}
