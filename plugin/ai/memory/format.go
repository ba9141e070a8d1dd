package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hrygo/guildmind/store"
)

// DefaultMaxFacts caps the facts rendered by FormatForLLM.
const DefaultMaxFacts = 10

// FormatForLLM renders env as prompt context. Output depends only on env and
// maxFacts: identity, domains, preferences, the top facts by confidence
// (insertion order breaks ties) and the last session summary.
func FormatForLLM(env *Envelope, maxFacts int) string {
	if env == nil {
		return ""
	}
	if maxFacts <= 0 {
		maxFacts = DefaultMaxFacts
	}

	var sb strings.Builder
	sb.WriteString("User: ")
	sb.WriteString(displayName(env.Identity))
	sb.WriteString("\n")

	rel := env.Relational
	if len(rel.Domains) > 0 {
		fmt.Fprintf(&sb, "Domains: %s\n", strings.Join(rel.Domains, ", "))
	}
	if len(rel.Preferences) > 0 {
		keys := store.SortedPreferenceKeys(rel.Preferences)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, rel.Preferences[k]))
		}
		fmt.Fprintf(&sb, "Preferences: %s\n", strings.Join(pairs, ", "))
	}
	if rel.LearningLevel != "" {
		fmt.Fprintf(&sb, "Learning level: %s\n", rel.LearningLevel)
	}

	if top := topFacts(rel.Facts, maxFacts); len(top) > 0 {
		sb.WriteString("Known facts:\n")
		for _, f := range top {
			fmt.Fprintf(&sb, "- %s (confidence %.2f)\n", f.Text, f.Confidence)
		}
	}

	if env.RecentContext != nil && env.RecentContext.Summary != "" {
		fmt.Fprintf(&sb, "Last session: %s\n", env.RecentContext.Summary)
	}
	return sb.String()
}

func displayName(id Identity) string {
	switch {
	case id.Name != "" && id.Nickname != "" && id.Nickname != id.Name:
		return fmt.Sprintf("%s (%s)", id.Name, id.Nickname)
	case id.Name != "":
		return id.Name
	case id.Nickname != "":
		return id.Nickname
	default:
		return id.UserID
	}
}

func topFacts(facts []Fact, n int) []Fact {
	sorted := append([]Fact(nil), facts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
