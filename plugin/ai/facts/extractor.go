// Package facts turns session summaries into grounded, confidence-scored facts.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/guildmind/plugin/ai"
	"github.com/hrygo/guildmind/plugin/ai/timeout"
	"github.com/hrygo/guildmind/store"
)

const (
	// MinSummaryLength is the shortest summary worth sending to the LLM.
	MinSummaryLength = 20
	// MinConfidence is the lowest LLM confidence an extracted fact may carry.
	MinConfidence = 0.5
	// SourceLLMExtraction marks facts produced by Extract.
	SourceLLMExtraction = "llm_extraction"

	defaultCategory = "general"
	defaultTimeout  = timeout.LLMCallTimeout
)

const extractionPrompt = `You extract durable facts about a single user from a conversation summary.

Rules:
- Only state facts the summary explicitly supports. Never guess or embellish.
- Each fact is one short sentence in the third person, e.g. "User works as a nurse".
- Skip greetings, moods of the moment and anything about the assistant.
- confidence is a number from 0 to 1 expressing how clearly the summary states the fact.
- category is one word such as identity, work, hobby, preference, relationship, location, general.

Respond with a JSON array only, no prose:
[{"text": "...", "confidence": 0.8, "category": "hobby"}]
Respond with [] when there is nothing worth remembering.`

// Fact is an accepted extraction candidate, normalized for storage.
type Fact struct {
	Text       string         `json:"text"`
	Type       store.FactType `json:"type"`
	Confidence float64        `json:"confidence"`
	Category   string         `json:"category"`
	Source     string         `json:"source"`
}

// candidate is one element of the LLM's JSON answer.
type candidate struct {
	Text       string   `json:"text"`
	Fact       string   `json:"fact"`
	Confidence *float64 `json:"confidence"`
	Category   string   `json:"category"`
}

// Extractor asks an LLM for facts and keeps only the grounded ones.
type Extractor struct {
	llm     ai.LLMService
	timeout time.Duration
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTimeout bounds a single extraction call.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExtractor creates an Extractor backed by llm.
func NewExtractor(llm ai.LLMService, opts ...Option) *Extractor {
	e := &Extractor{llm: llm, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the grounded facts found in summary.
// It never fails: short summaries, provider errors and malformed output all
// yield an empty result.
func (e *Extractor) Extract(ctx context.Context, summary, userID string) []Fact {
	summary = strings.TrimSpace(summary)
	if len([]rune(summary)) < MinSummaryLength {
		return []Fact{}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	response, err := e.llm.Chat(ctx, ai.FormatMessages(extractionPrompt, "Summary:\n"+summary, nil))
	if err != nil {
		slog.Warn("fact extraction failed",
			"user_id", userID,
			"error", err,
		)
		return []Fact{}
	}

	candidates, err := parseCandidates(response)
	if err != nil {
		slog.Warn("fact extraction returned malformed output",
			"user_id", userID,
			"response", truncateLog(response, timeout.MaxTruncateLength),
			"error", err,
		)
		return []Fact{}
	}

	accepted := make([]Fact, 0, len(candidates))
	for _, c := range candidates {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			text = strings.TrimSpace(c.Fact)
		}
		if text == "" || c.Confidence == nil {
			continue
		}
		confidence := *c.Confidence
		if confidence < MinConfidence {
			slog.Debug("fact rejected: low confidence",
				"user_id", userID,
				"fact", text,
				"confidence", confidence,
			)
			continue
		}
		if !ValidateFactAgainstSummary(text, summary) {
			slog.Debug("fact rejected: not grounded in summary",
				"user_id", userID,
				"fact", text,
			)
			continue
		}

		category := strings.ToLower(strings.TrimSpace(c.Category))
		if category == "" {
			category = defaultCategory
		}
		accepted = append(accepted, Fact{
			Text:       text,
			Type:       store.FactTypeUserFact,
			Confidence: store.ClampConfidence(confidence),
			Category:   category,
			Source:     SourceLLMExtraction,
		})
	}
	return accepted
}

// parseCandidates reads a JSON array of candidates from an LLM response,
// tolerating markdown fences, surrounding prose and a {"facts": [...]} wrapper.
func parseCandidates(response string) ([]candidate, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "{") {
		var wrapped struct {
			Facts []candidate `json:"facts"`
		}
		if err := json.Unmarshal([]byte(response), &wrapped); err == nil && wrapped.Facts != nil {
			return wrapped.Facts, nil
		}
	}

	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var candidates []candidate
	if err := json.Unmarshal([]byte(response[start:end+1]), &candidates); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return candidates, nil
}

func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
