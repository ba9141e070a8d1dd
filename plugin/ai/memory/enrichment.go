package memory

import (
	"context"
	"log/slog"

	"github.com/hrygo/guildmind/plugin/ai/pattern"
	"github.com/hrygo/guildmind/store"
)

// OnSessionClosed schedules fact extraction and pattern analysis for a closed
// session's summary. It returns immediately; false means the job was not
// scheduled because enrichment is disabled or every worker slot is busy.
func (s *Service) OnSessionClosed(userID, guildID, summary string) bool {
	if s.extractor == nil && s.analyzer == nil {
		return false
	}
	if validScope(userID, guildID) != nil || summary == "" {
		return false
	}
	if !s.slots.TryAcquire(1) {
		slog.Warn("enrichment dropped: all workers busy",
			"user_id", userID,
			"guild_id", guildID,
			"workers", s.config.EnrichmentWorkers,
		)
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.slots.Release(1)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("enrichment panicked", "user_id", userID, "guild_id", guildID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.EnrichmentTimeout)
		defer cancel()
		s.enrich(ctx, userID, guildID, summary)
	}()
	return true
}

// Wait blocks until all scheduled enrichment has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) enrich(ctx context.Context, userID, guildID, summary string) {
	added := 0
	for _, f := range s.ExtractFacts(ctx, summary, userID) {
		if s.AddFact(ctx, userID, guildID, f) {
			added++
		}
	}

	if s.analyzer == nil {
		return
	}
	existing, err := s.store.GetUserProfile(ctx, &store.FindUserProfile{UserID: &userID, GuildID: &guildID})
	if err != nil {
		slog.Warn("enrichment skipped pattern analysis", "user_id", userID, "guild_id", guildID, "error", err)
		return
	}

	proposal := s.AnalyzePatterns(ctx, summary, userID, existing)
	applied := false
	switch {
	case proposal == nil:
	case proposal.CanAutoApply():
		applied = s.ApplyProfileUpdates(ctx, userID, guildID, proposal.ProposedUpdates)
	default:
		s.onProposal(ctx, userID, guildID, proposal)
	}

	slog.Info("session enrichment finished",
		"user_id", userID,
		"guild_id", guildID,
		"facts_added", added,
		"proposal", proposal != nil,
		"proposal_applied", applied,
	)
}

func logProposal(_ context.Context, userID, guildID string, proposal *pattern.Proposal) {
	slog.Info("profile update awaiting confirmation",
		"user_id", userID,
		"guild_id", guildID,
		"confidence", proposal.Confidence,
		"domains", proposal.ProposedUpdates.Domains,
		"learning_level", proposal.ProposedUpdates.LearningLevel,
	)
}
