package store

import (
	"strings"
	"time"
)

// FactType distinguishes decaying user facts from decay-exempt entries.
type FactType string

const (
	FactTypeUserFact        FactType = "USER_FACT"
	FactTypeSharedNarrative FactType = "SHARED_NARRATIVE"
)

// MemorableFact is a confidence-scored claim about a user, owned by a profile.
type MemorableFact struct {
	ID            string
	UserID        string
	GuildID       string
	Text          string
	Type          FactType
	Confidence    float64 // [0, 1]
	Category      string
	Source        string
	AddedAt       time.Time
	LastConfirmed time.Time
}

// FindMemorableFact specifies the profile whose facts are listed.
type FindMemorableFact struct {
	UserID  string
	GuildID string
}

// ReinforceMemorableFact raises one fact's confidence in a single atomic update:
// confidence = min(confidence + Boost, Ceiling), last_confirmed = ConfirmedAt.
type ReinforceMemorableFact struct {
	ID          string
	UserID      string
	GuildID     string
	Boost       float64
	Ceiling     float64
	ConfirmedAt time.Time
}

// FactSnapshot is the state a sweep read for one fact. Guarded writes only
// touch the fact while it still holds this state.
type FactSnapshot struct {
	Confidence    float64
	LastConfirmed time.Time
}

// FactUpdate sets an absolute confidence on one fact and moves its
// last_confirmed, which also anchors decay, forward past the consumed periods.
type FactUpdate struct {
	ID            string
	Confidence    float64
	LastConfirmed time.Time
	Observed      FactSnapshot
}

// FactDelete removes one fact if it is unchanged since Observed.
type FactDelete struct {
	ID       string
	Observed FactSnapshot
}

// FactChanges is the commit of a decay/prune pass over one profile.
// Drivers apply it atomically. A fact written by someone else after the pass
// read it no longer matches its Observed state and is skipped.
type FactChanges struct {
	UserID  string
	GuildID string
	Updates []FactUpdate
	Deletes []FactDelete
}

// IsEmpty reports whether the changes would write nothing.
func (c *FactChanges) IsEmpty() bool {
	return c == nil || (len(c.Updates) == 0 && len(c.Deletes) == 0)
}

// AppliedFactChanges counts the guarded writes that matched.
type AppliedFactChanges struct {
	Updated int
	Deleted int
}

// ClampConfidence bounds c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// NormalizeFact fixes up a fact read from any driver so callers see one schema:
// trimmed text, a known type, clamped confidence and a non-zero last_confirmed.
func NormalizeFact(f *MemorableFact) *MemorableFact {
	if f == nil {
		return nil
	}
	f.Text = strings.TrimSpace(f.Text)
	if f.Type == "" {
		f.Type = FactTypeUserFact
	}
	f.Confidence = ClampConfidence(f.Confidence)
	if f.LastConfirmed.IsZero() {
		f.LastConfirmed = f.AddedAt
	}
	return f
}
