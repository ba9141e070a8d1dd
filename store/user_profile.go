package store

import (
	"sort"
	"strings"
	"time"
)

// UserProfile is the persistent per-(user, guild) record: identity plus relational memory.
type UserProfile struct {
	UserID  string
	GuildID string

	// Identity
	Name     string
	Nickname string

	// Relational memory
	Domains       []string
	Preferences   map[string]any
	LearningLevel string
	// Facts is populated by GetUserProfile only, in insertion order.
	Facts []*MemorableFact

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FindUserProfile specifies the conditions for finding profiles.
type FindUserProfile struct {
	UserID  *string
	GuildID *string
	Limit   int
	Offset  int
}

// UpsertUserProfile creates a profile on first contact or refreshes its identity.
// Relational fields are never touched.
type UpsertUserProfile struct {
	UserID   string
	GuildID  string
	Name     string
	Nickname string
}

// MergeUserProfile merges inferred traits into a profile in one atomic write:
// Domains are unioned, Preferences shallow-merged, LearningLevel overwritten when set.
// The profile is created if it does not exist.
type MergeUserProfile struct {
	UserID        string
	GuildID       string
	Domains       []string
	Preferences   map[string]any
	LearningLevel *string
}

// DeleteUserProfile purges a profile together with its facts and shared narratives.
type DeleteUserProfile struct {
	UserID  string
	GuildID string
}

// UnionDomains appends the entries of add missing from base, preserving order.
// Comparison is case-insensitive; blanks are dropped.
func UnionDomains(base, add []string) []string {
	seen := make(map[string]bool, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, d := range list {
			d = strings.TrimSpace(d)
			key := strings.ToLower(d)
			if d == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, d)
		}
	}
	return out
}

// MergePreferences returns base overlaid with patch (top-level keys only).
func MergePreferences(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// SortedPreferenceKeys returns the preference keys in lexical order.
func SortedPreferenceKeys(prefs map[string]any) []string {
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
