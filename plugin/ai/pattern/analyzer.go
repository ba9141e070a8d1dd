// Package pattern infers profile-level traits (domains, communication
// preferences, learning level) from session summaries.
//
// Analysis never writes storage. Callers decide whether a Proposal is applied.
package pattern

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
	// MinSummaryLength is the shortest summary worth analyzing.
	MinSummaryLength = 30
	// DiscardBelow drops proposals the LLM is unsure about.
	DiscardBelow = 0.6
	// AutoApplyAt is the confidence from which a proposal needs no confirmation.
	AutoApplyAt = 0.8

	defaultTimeout = timeout.LLMCallTimeout
)

const analysisPrompt = `You infer stable traits of a single user from a conversation summary.

Propose only traits the summary gives real evidence for:
- domains: topics or fields the user is knowledgeable about or keeps returning to.
- preferences: how the user likes to be answered, as flat key/value pairs
  (e.g. "tone": "casual", "detail": "brief", "language": "en").
- learning_level: one of beginner, intermediate, advanced, expert. Omit when unclear.
- confidence: a number from 0 to 1 for the proposal as a whole.

Respond with a single JSON object only, no prose:
{"domains": ["..."], "preferences": {"key": "value"}, "learning_level": "...", "confidence": 0.7}`

// ProfileUpdates are trait changes proposed for a profile.
type ProfileUpdates struct {
	Domains       []string       `json:"domains,omitempty"`
	Preferences   map[string]any `json:"preferences,omitempty"`
	LearningLevel string         `json:"learning_level,omitempty"`
}

// IsEmpty reports whether applying u would change nothing.
func (u *ProfileUpdates) IsEmpty() bool {
	return u == nil || (len(u.Domains) == 0 && len(u.Preferences) == 0 && u.LearningLevel == "")
}

// Proposal is a confidence-gated set of profile updates.
type Proposal struct {
	ProposedUpdates      ProfileUpdates `json:"proposed_updates"`
	Confidence           float64        `json:"confidence"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
}

// CanAutoApply reports whether the proposal may be merged without confirmation.
func (p *Proposal) CanAutoApply() bool {
	return p != nil && !p.RequiresConfirmation && p.Confidence >= AutoApplyAt
}

// analysis is the LLM's JSON answer. Both flat and nested shapes are accepted.
type analysis struct {
	ProfileUpdates
	ProposedUpdates *ProfileUpdates `json:"proposed_updates"`
	Confidence      *float64        `json:"confidence"`
}

// Analyzer proposes profile updates from summaries.
type Analyzer struct {
	llm     ai.LLMService
	timeout time.Duration
}

// NewAnalyzer creates an Analyzer backed by llm.
func NewAnalyzer(llm ai.LLMService) *Analyzer {
	return &Analyzer{llm: llm, timeout: defaultTimeout}
}

// WithTimeout bounds a single analysis call.
func (a *Analyzer) WithTimeout(d time.Duration) *Analyzer {
	if d > 0 {
		a.timeout = d
	}
	return a
}

// Analyze returns a proposal for the user's profile, or nil when there is
// nothing confident enough to propose. existing may be nil.
func (a *Analyzer) Analyze(ctx context.Context, summary, userID string, existing *store.UserProfile) *Proposal {
	summary = strings.TrimSpace(summary)
	if len([]rune(summary)) < MinSummaryLength {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	response, err := a.llm.Chat(ctx, ai.FormatMessages(analysisPrompt, buildUserContent(summary, existing), nil))
	if err != nil {
		slog.Warn("pattern analysis failed",
			"user_id", userID,
			"error", err,
		)
		return nil
	}

	result, err := parseAnalysis(response)
	if err != nil {
		slog.Warn("pattern analysis returned malformed output",
			"user_id", userID,
			"error", err,
		)
		return nil
	}

	confidence := store.ClampConfidence(*result.Confidence)
	if confidence < DiscardBelow {
		slog.Debug("pattern proposal discarded: low confidence",
			"user_id", userID,
			"confidence", confidence,
		)
		return nil
	}

	updates := newUpdates(result, existing)
	if updates.IsEmpty() {
		return nil
	}

	return &Proposal{
		ProposedUpdates:      updates,
		Confidence:           confidence,
		RequiresConfirmation: confidence < AutoApplyAt,
	}
}

// ToMerge converts updates into the atomic store merge for one profile.
func ToMerge(userID, guildID string, updates ProfileUpdates) *store.MergeUserProfile {
	merge := &store.MergeUserProfile{
		UserID:      userID,
		GuildID:     guildID,
		Domains:     updates.Domains,
		Preferences: updates.Preferences,
	}
	if updates.LearningLevel != "" {
		level := updates.LearningLevel
		merge.LearningLevel = &level
	}
	return merge
}

// newUpdates keeps only what the existing profile does not already hold.
func newUpdates(result *analysis, existing *store.UserProfile) ProfileUpdates {
	proposed := result.ProfileUpdates
	if result.ProposedUpdates != nil {
		proposed = *result.ProposedUpdates
	}

	var known []string
	currentLevel := ""
	if existing != nil {
		known = store.UnionDomains(existing.Domains, nil)
		currentLevel = existing.LearningLevel
	}

	updates := ProfileUpdates{}
	union := store.UnionDomains(known, proposed.Domains)
	if len(union) > len(known) {
		updates.Domains = union[len(known):]
	}

	for k, v := range proposed.Preferences {
		k = strings.TrimSpace(k)
		if k == "" || v == nil {
			continue
		}
		if updates.Preferences == nil {
			updates.Preferences = map[string]any{}
		}
		updates.Preferences[k] = v
	}

	level := strings.ToLower(strings.TrimSpace(proposed.LearningLevel))
	if level != "" && level != strings.ToLower(currentLevel) {
		updates.LearningLevel = level
	}
	return updates
}

func buildUserContent(summary string, existing *store.UserProfile) string {
	var sb strings.Builder
	if existing != nil {
		if len(existing.Domains) > 0 {
			fmt.Fprintf(&sb, "Known domains: %s\n", strings.Join(existing.Domains, ", "))
		}
		if existing.LearningLevel != "" {
			fmt.Fprintf(&sb, "Known learning level: %s\n", existing.LearningLevel)
		}
		if len(existing.Preferences) > 0 {
			keys := store.SortedPreferenceKeys(existing.Preferences)
			pairs := make([]string, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, fmt.Sprintf("%s=%v", k, existing.Preferences[k]))
			}
			fmt.Fprintf(&sb, "Known preferences: %s\n", strings.Join(pairs, ", "))
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
	}
	sb.WriteString("Summary:\n")
	sb.WriteString(summary)
	return sb.String()
}

func parseAnalysis(response string) (*analysis, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var result analysis
	if err := json.Unmarshal([]byte(response[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	if result.Confidence == nil {
		return nil, fmt.Errorf("missing confidence")
	}
	return &result, nil
}
