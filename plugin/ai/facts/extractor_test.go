package facts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/guildmind/plugin/ai"
	"github.com/hrygo/guildmind/store"
)

const hobbySummary = "User said nothing notable about hobbies, mostly chatted about the weather."

func texts(facts []Fact) []string {
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		out = append(out, f.Text)
	}
	return out
}

func TestExtract_GroundingFirewall(t *testing.T) {
	llm := ai.NewMockLLMService(`[
		{"text": "User owns a yacht", "confidence": 0.95, "category": "possession"},
		{"text": "User mentioned hobbies", "confidence": 0.6, "category": "hobby"}
	]`)
	got := NewExtractor(llm).Extract(context.Background(), hobbySummary, "u1")

	require.Len(t, got, 1)
	assert.Equal(t, Fact{
		Text:       "User mentioned hobbies",
		Type:       store.FactTypeUserFact,
		Confidence: 0.6,
		Category:   "hobby",
		Source:     SourceLLMExtraction,
	}, got[0])
}

func TestExtract_ShortSummary(t *testing.T) {
	llm := ai.NewMockLLMService(`[{"text": "User is short", "confidence": 0.9}]`)
	got := NewExtractor(llm).Extract(context.Background(), "  too short here ", "u1")

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, llm.CallCount())
}

func TestExtract_ConfidenceGate(t *testing.T) {
	summary := "User explained that gardening tomatoes and roses fills their weekends."
	llm := ai.NewMockLLMService(`[
		{"text": "User enjoys gardening tomatoes", "confidence": 0.49},
		{"text": "User grows roses", "confidence": 0.5},
		{"text": "User spends weekends gardening", "confidence": 1.4, "category": "  Hobby "},
		{"text": "User gardening without confidence"}
	]`)
	got := NewExtractor(llm).Extract(context.Background(), summary, "u1")

	require.Len(t, got, 2)
	assert.Equal(t, []string{"User grows roses", "User spends weekends gardening"}, texts(got))
	assert.Equal(t, defaultCategory, got[0].Category)
	assert.Equal(t, 1.0, got[1].Confidence)
	assert.Equal(t, "hobby", got[1].Category)
}

func TestExtract_BestEffort(t *testing.T) {
	summary := "User talked at length about their new job as a pediatric nurse."

	tests := []struct {
		name string
		llm  *ai.MockLLMService
	}{
		{name: "provider error", llm: &ai.MockLLMService{Errors: []error{errors.New("upstream 503")}}},
		{name: "not json", llm: ai.NewMockLLMService("Sure! The user is a nurse.")},
		{name: "broken json", llm: ai.NewMockLLMService(`[{"text": "User is a nurse", "confidence": }]`)},
		{name: "empty array", llm: ai.NewMockLLMService("[]")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewExtractor(tt.llm).Extract(context.Background(), summary, "u1")
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestExtract_ResponseShapes(t *testing.T) {
	summary := "User talked at length about their new job as a pediatric nurse."
	want := []string{"User works as a pediatric nurse"}

	tests := []struct {
		name     string
		response string
	}{
		{name: "fenced", response: "```json\n[{\"text\": \"User works as a pediatric nurse\", \"confidence\": 0.9}]\n```"},
		{name: "prose around array", response: "Here you go:\n[{\"text\": \"User works as a pediatric nurse\", \"confidence\": 0.9}]\nDone."},
		{name: "wrapped object", response: `{"facts": [{"text": "User works as a pediatric nurse", "confidence": 0.9}]}`},
		{name: "legacy fact field", response: `[{"fact": "User works as a pediatric nurse", "confidence": 0.9}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewExtractor(ai.NewMockLLMService(tt.response)).Extract(context.Background(), summary, "u1")
			assert.Equal(t, want, texts(got))
		})
	}
}

func TestExtract_SendsSummary(t *testing.T) {
	llm := ai.NewMockLLMService("[]")
	NewExtractor(llm).Extract(context.Background(), hobbySummary, "u1")

	calls := llm.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Equal(t, "system", calls[0][0].Role)
	assert.Contains(t, calls[0][1].Content, hobbySummary)
}

func TestValidateFactAgainstSummary(t *testing.T) {
	tests := []struct {
		name    string
		fact    string
		summary string
		want    bool
	}{
		{name: "no overlap", fact: "User owns a yacht", summary: hobbySummary, want: false},
		{name: "half overlap", fact: "User mentioned hobbies", summary: hobbySummary, want: true},
		{name: "full overlap case-insensitive", fact: "Plays CHESS online", summary: "they said they play chess online every night", want: true},
		{name: "short tokens ignored", fact: "Is an ML dev at Bay", summary: "nothing related", want: false},
		{name: "one of four", fact: "Climbs mountains during winter", summary: "went climbing mountains", want: false},
		{name: "two of four", fact: "Climbs mountains during winter", summary: "loves mountains in winter", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateFactAgainstSummary(tt.fact, tt.summary))
		})
	}
}
