// Package decay holds the pure confidence math of the memory subsystem:
// time-based decay, floor and threshold pruning, and reinforcement matching.
// Nothing here touches storage; callers commit the returned changes.
package decay

import (
	"math"
	"strings"
	"time"

	"github.com/hrygo/guildmind/store"
)

const (
	// DefaultDecayDays is the length of one decay period.
	DefaultDecayDays = 30
	// Step is the confidence lost per elapsed decay period.
	Step = 0.1
	// Floor is the lowest confidence decay can produce. Facts below it are dropped.
	Floor = 0.3

	// DefaultBoost is the confidence added by one reinforcement.
	DefaultBoost = 0.15
	// Ceiling caps reinforced confidence.
	Ceiling = 0.95
)

// ApplyConfidenceDecay returns the facts as they stand at now.
//
// Each USER_FACT loses Step for every full decayDays period since it was last
// confirmed, bounded below by Floor; facts under Floor are dropped. A decayed
// fact's LastConfirmed moves forward by the periods consumed, so applying the
// result and decaying again later never charges the same period twice.
// SHARED_NARRATIVE entries pass through untouched. The input is not modified;
// decayed facts are returned as copies.
func ApplyConfidenceDecay(facts []*store.MemorableFact, decayDays int, now time.Time) []*store.MemorableFact {
	if decayDays <= 0 {
		decayDays = DefaultDecayDays
	}
	period := time.Duration(decayDays) * 24 * time.Hour

	out := make([]*store.MemorableFact, 0, len(facts))
	for _, f := range facts {
		if f == nil {
			continue
		}
		if f.Type == store.FactTypeSharedNarrative {
			out = append(out, f)
			continue
		}
		if f.Confidence < Floor {
			continue
		}

		elapsed := now.Sub(lastConfirmed(f))
		periods := math.Floor(float64(elapsed) / float64(period))
		if periods < 1 {
			out = append(out, f)
			continue
		}

		decayed := *f
		decayed.Confidence = round(math.Min(f.Confidence, math.Max(f.Confidence-Step*periods, Floor)))
		decayed.LastConfirmed = lastConfirmed(f).Add(time.Duration(periods) * period)
		out = append(out, &decayed)
	}
	return out
}

// Result is the outcome of a decay and prune pass over one profile.
type Result struct {
	// Facts are the survivors in their original order.
	Facts   []*store.MemorableFact
	Decayed int
	Pruned  int
	Changes *store.FactChanges
}

// Sweep decays the profile's facts and then prunes USER_FACTs whose confidence
// is below pruneThreshold. The threshold is independent of Floor.
// Changes holds the confidence updates and deletions needed to persist the result.
func Sweep(userID, guildID string, facts []*store.MemorableFact, decayDays int, pruneThreshold float64, now time.Time) *Result {
	decayed := ApplyConfidenceDecay(facts, decayDays, now)

	result := &Result{
		Facts:   make([]*store.MemorableFact, 0, len(decayed)),
		Changes: &store.FactChanges{UserID: userID, GuildID: guildID},
	}

	after := make(map[string]*store.MemorableFact, len(decayed))
	for _, f := range decayed {
		if f.Type != store.FactTypeSharedNarrative && f.Confidence < pruneThreshold {
			continue
		}
		after[f.ID] = f
		result.Facts = append(result.Facts, f)
	}

	for _, f := range facts {
		if f == nil {
			continue
		}
		survivor, ok := after[f.ID]
		if !ok {
			result.Pruned++
			result.Changes.Deletes = append(result.Changes.Deletes, store.FactDelete{ID: f.ID, Observed: observed(f)})
			continue
		}
		if survivor.Confidence != f.Confidence {
			result.Decayed++
			result.Changes.Updates = append(result.Changes.Updates, store.FactUpdate{
				ID:            f.ID,
				Confidence:    survivor.Confidence,
				LastConfirmed: survivor.LastConfirmed,
				Observed:      observed(f),
			})
		}
	}
	return result
}

// Reinforced returns confidence after one reinforcement with boost.
func Reinforced(confidence, boost float64) float64 {
	return round(math.Min(confidence+boost, Ceiling))
}

// MatchFact returns the first USER_FACT whose text contains text or is contained
// by it, ignoring case, or nil when none does.
func MatchFact(facts []*store.MemorableFact, text string) *store.MemorableFact {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}
	for _, f := range facts {
		if f == nil || f.Type == store.FactTypeSharedNarrative {
			continue
		}
		stored := strings.ToLower(strings.TrimSpace(f.Text))
		if stored == "" {
			continue
		}
		if strings.Contains(stored, needle) || strings.Contains(needle, stored) {
			return f
		}
	}
	return nil
}

func observed(f *store.MemorableFact) store.FactSnapshot {
	return store.FactSnapshot{Confidence: f.Confidence, LastConfirmed: f.LastConfirmed}
}

func lastConfirmed(f *store.MemorableFact) time.Time {
	if f.LastConfirmed.IsZero() {
		return f.AddedAt
	}
	return f.LastConfirmed
}

// round keeps three decimals so repeated steps do not accumulate float noise.
func round(c float64) float64 {
	return store.ClampConfidence(math.Round(c*1000) / 1000)
}
