package memory

import (
	"context"
	"fmt"

	"github.com/hrygo/guildmind/plugin/ai/aitime"
	"github.com/hrygo/guildmind/store"
)

// Builder assembles envelopes from the profile and session stores.
type Builder struct {
	store *store.Store
	clock aitime.Clock
}

// NewBuilder creates a Builder.
func NewBuilder(s *store.Store, clock aitime.Clock) *Builder {
	return &Builder{store: s, clock: aitime.OrSystem(clock)}
}

// Build reads a fresh envelope. A missing profile yields an envelope with an
// empty relational layer.
func (b *Builder) Build(ctx context.Context, userID, guildID string) (*Envelope, error) {
	env := emptyEnvelope(userID, guildID, b.clock.Now())

	profile, err := b.store.GetUserProfile(ctx, &store.FindUserProfile{
		UserID:  &userID,
		GuildID: &guildID,
	})
	if err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	if profile != nil {
		env.Identity.Name = profile.Name
		env.Identity.Nickname = profile.Nickname
		env.Relational.Domains = append(env.Relational.Domains, profile.Domains...)
		env.Relational.Preferences = store.MergePreferences(nil, profile.Preferences)
		env.Relational.LearningLevel = profile.LearningLevel
		for _, f := range profile.Facts {
			if f.Type == store.FactTypeSharedNarrative {
				continue
			}
			env.Relational.Facts = append(env.Relational.Facts, newFact(f))
		}
	}

	session, err := b.store.GetLatestClosedSession(ctx, userID, guildID)
	if err != nil {
		return nil, fmt.Errorf("get latest closed session: %w", err)
	}
	if session != nil && session.Summary != "" {
		env.RecentContext = &RecentContext{
			SessionID: session.ID,
			Summary:   session.Summary,
			ClosedAt:  session.ClosedAt,
		}
	}
	return env, nil
}
