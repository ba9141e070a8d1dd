// Package maintenance runs the periodic memory sweep: confidence decay and
// pruning for every profile, plus session retention.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/guildmind/plugin/ai/aitime"
	"github.com/hrygo/guildmind/plugin/ai/decay"
	"github.com/hrygo/guildmind/plugin/ai/session"
	"github.com/hrygo/guildmind/store"
)

const (
	// DefaultPruneThreshold is the sweep's own prune threshold, separate from decay.Floor.
	DefaultPruneThreshold = 0.2
	// DefaultConcurrency bounds the profiles swept in parallel.
	DefaultConcurrency = 4
	defaultPageSize    = 200
)

// ProfileStore is the storage the sweep reads and commits to.
type ProfileStore interface {
	ListUserProfiles(ctx context.Context, find *store.FindUserProfile) ([]*store.UserProfile, error)
	ListMemorableFacts(ctx context.Context, find *store.FindMemorableFact) ([]*store.MemorableFact, error)
	ApplyFactChanges(ctx context.Context, changes *store.FactChanges) (*store.AppliedFactChanges, error)
}

// CacheInvalidator drops cached envelopes.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context, userID, guildID string) error
}

// SessionArchiver applies session retention.
type SessionArchiver interface {
	ArchiveExpired(ctx context.Context, retentionDays int) (*session.ArchiveResult, error)
}

// Report summarizes one sweep.
type Report struct {
	RunID             string    `json:"run_id"`
	StartedAt         time.Time `json:"started_at"`
	DurationMS        int64     `json:"duration_ms"`
	ProfilesProcessed int       `json:"profiles_processed"`
	FactsDecayed      int       `json:"facts_decayed"`
	FactsPruned       int       `json:"facts_pruned"`
	SessionsArchived  int64     `json:"sessions_archived"`
	SessionsDeleted   int64     `json:"sessions_deleted"`
	CachesInvalidated int       `json:"caches_invalidated"`
	Errors            []string  `json:"errors"`
}

// Config tunes the Sweeper.
type Config struct {
	SessionRetentionDays int
	Concurrency          int
	PageSize             int
}

// Sweeper runs maintenance sweeps.
type Sweeper struct {
	store    ProfileStore
	cache    CacheInvalidator
	sessions SessionArchiver
	clock    aitime.Clock
	config   Config
}

// NewSweeper creates a Sweeper. cache and sessions may be nil.
func NewSweeper(s ProfileStore, cache CacheInvalidator, sessions SessionArchiver, clock aitime.Clock, cfg Config) *Sweeper {
	if cfg.SessionRetentionDays <= 0 {
		cfg.SessionRetentionDays = session.DefaultRetentionDays
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &Sweeper{
		store:    s,
		cache:    cache,
		sessions: sessions,
		clock:    aitime.OrSystem(clock),
		config:   cfg,
	}
}

// RunMaintenance decays and prunes every profile's facts and applies session
// retention. A failing profile is recorded in Errors and never stops the sweep.
func (s *Sweeper) RunMaintenance(ctx context.Context, decayDays int, pruneThreshold float64) *Report {
	if decayDays <= 0 {
		decayDays = decay.DefaultDecayDays
	}
	now := s.clock.Now()
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: now,
		Errors:    []string{},
	}
	logger := slog.With("run_id", report.RunID)
	logger.Info("maintenance sweep started",
		"decay_days", decayDays,
		"prune_threshold", pruneThreshold,
	)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)

	for offset := 0; ; offset += s.config.PageSize {
		if ctx.Err() != nil {
			mu.Lock()
			report.Errors = append(report.Errors, fmt.Sprintf("sweep interrupted: %v", ctx.Err()))
			mu.Unlock()
			break
		}
		page, err := s.store.ListUserProfiles(ctx, &store.FindUserProfile{
			Limit:  s.config.PageSize,
			Offset: offset,
		})
		if err != nil {
			mu.Lock()
			report.Errors = append(report.Errors, fmt.Sprintf("list profiles at offset %d: %v", offset, err))
			mu.Unlock()
			break
		}

		for _, p := range page {
			g.Go(func() error {
				outcome, err := s.sweepProfile(ctx, p, decayDays, pruneThreshold, now)

				mu.Lock()
				defer mu.Unlock()
				report.ProfilesProcessed++
				if err != nil {
					logger.Error("maintenance failed for profile",
						"user_id", p.UserID,
						"guild_id", p.GuildID,
						"error", err,
					)
					report.Errors = append(report.Errors, fmt.Sprintf("%s/%s: %v", p.GuildID, p.UserID, err))
					return nil
				}
				report.FactsDecayed += outcome.decayed
				report.FactsPruned += outcome.pruned
				if outcome.invalidated {
					report.CachesInvalidated++
				}
				return nil
			})
		}
		if len(page) < s.config.PageSize {
			break
		}
	}
	_ = g.Wait()

	if s.sessions != nil {
		archived, err := s.sessions.ArchiveExpired(ctx, s.config.SessionRetentionDays)
		if archived != nil {
			report.SessionsArchived = archived.Archived
			report.SessionsDeleted = archived.Deleted
			report.CachesInvalidated += archived.CachesInvalidated
		}
		if err != nil {
			logger.Error("session retention failed", "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("sessions: %v", err))
		}
	}

	report.DurationMS = s.clock.Now().Sub(now).Milliseconds()
	logger.Info("maintenance sweep finished",
		"profiles_processed", report.ProfilesProcessed,
		"facts_decayed", report.FactsDecayed,
		"facts_pruned", report.FactsPruned,
		"sessions_archived", report.SessionsArchived,
		"sessions_deleted", report.SessionsDeleted,
		"caches_invalidated", report.CachesInvalidated,
		"errors", len(report.Errors),
	)
	return report
}

type profileOutcome struct {
	decayed     int
	pruned      int
	invalidated bool
}

func (s *Sweeper) sweepProfile(ctx context.Context, p *store.UserProfile, decayDays int, pruneThreshold float64, now time.Time) (outcome profileOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	list, err := s.store.ListMemorableFacts(ctx, &store.FindMemorableFact{UserID: p.UserID, GuildID: p.GuildID})
	if err != nil {
		return outcome, fmt.Errorf("list facts: %w", err)
	}

	result := decay.Sweep(p.UserID, p.GuildID, list, decayDays, pruneThreshold, now)
	if result.Changes.IsEmpty() {
		return outcome, nil
	}
	applied, err := s.store.ApplyFactChanges(ctx, result.Changes)
	if err != nil {
		return outcome, fmt.Errorf("apply fact changes: %w", err)
	}
	outcome.decayed = applied.Updated
	outcome.pruned = applied.Deleted
	if skipped := len(result.Changes.Updates) + len(result.Changes.Deletes) - applied.Updated - applied.Deleted; skipped > 0 {
		slog.Debug("facts changed during sweep were left alone",
			"user_id", p.UserID,
			"guild_id", p.GuildID,
			"skipped", skipped,
		)
	}
	if applied.Updated+applied.Deleted == 0 {
		return outcome, nil
	}

	if s.cache != nil {
		if err := s.cache.InvalidateCache(ctx, p.UserID, p.GuildID); err == nil {
			outcome.invalidated = true
		}
	}
	return outcome, nil
}
