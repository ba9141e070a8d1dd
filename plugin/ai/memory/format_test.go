package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForLLM(t *testing.T) {
	env := &Envelope{
		Identity: Identity{UserID: "u1", GuildID: "g1", Name: "Ada", Nickname: "ada_l"},
		Relational: Relational{
			Domains:       []string{"math", "engines"},
			Preferences:   map[string]any{"tone": "formal", "detail": "high"},
			LearningLevel: "expert",
			Facts: []Fact{
				{Text: "Writes notes on the analytical engine", Confidence: 0.7},
				{Text: "Corresponds with Babbage", Confidence: 0.9},
				{Text: "Enjoys poetry", Confidence: 0.7},
				{Text: "Rides horses", Confidence: 0.4},
			},
		},
		RecentContext: &RecentContext{Summary: "Discussed Bernoulli numbers."},
	}

	want := "User: Ada (ada_l)\n" +
		"Domains: math, engines\n" +
		"Preferences: detail=high, tone=formal\n" +
		"Learning level: expert\n" +
		"Known facts:\n" +
		"- Corresponds with Babbage (confidence 0.90)\n" +
		"- Writes notes on the analytical engine (confidence 0.70)\n" +
		"- Enjoys poetry (confidence 0.70)\n" +
		"Last session: Discussed Bernoulli numbers.\n"

	got := FormatForLLM(env, 3)
	assert.Equal(t, want, got)
	for i := 0; i < 20; i++ {
		assert.Equal(t, got, FormatForLLM(env, 3))
	}
	// Rendering never reorders the envelope itself.
	assert.Equal(t, "Writes notes on the analytical engine", env.Relational.Facts[0].Text)
}

func TestFormatForLLM_Sparse(t *testing.T) {
	env := emptyEnvelope("u42", "g1", now)
	assert.Equal(t, "User: u42\n", FormatForLLM(env, 0))
	assert.Equal(t, "", FormatForLLM(nil, 5))
}

func TestFormatForLLM_DefaultMaxFacts(t *testing.T) {
	env := emptyEnvelope("u1", "g1", now)
	for i := 0; i < DefaultMaxFacts+5; i++ {
		env.Relational.Facts = append(env.Relational.Facts, Fact{Text: "fact", Confidence: 0.5})
	}
	out := FormatForLLM(env, 0)
	assert.Equal(t, DefaultMaxFacts, strings.Count(out, "- fact ("))
}
