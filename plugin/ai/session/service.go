package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/guildmind/plugin/ai/aitime"
	"github.com/hrygo/guildmind/store"
)

// DefaultRetentionDays is the default number of days to retain sessions.
const DefaultRetentionDays = 30

// Service implements SessionService over the store.
type Service struct {
	store *store.Store
	clock aitime.Clock
	hooks Hooks
}

// NewService creates a session service. hooks may be nil.
func NewService(s *store.Store, clock aitime.Clock, hooks Hooks) *Service {
	return &Service{store: s, clock: aitime.OrSystem(clock), hooks: hooks}
}

// OpenSession implements SessionService.
func (s *Service) OpenSession(ctx context.Context, userID, guildID, channelID string) (*store.Session, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(guildID) == "" {
		return nil, errors.New("session: user_id and guild_id are required")
	}
	session, err := s.store.CreateSession(ctx, &store.Session{
		UserID:    userID,
		GuildID:   guildID,
		ChannelID: channelID,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// GetSession implements SessionService.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// AppendMessage implements SessionService.
func (s *Service) AppendMessage(ctx context.Context, sessionID string, msg store.SessionMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.clock.Now()
	}
	err := s.store.AppendSessionMessage(ctx, &store.AppendSessionMessage{ID: sessionID, Message: msg})
	if errors.Is(err, store.ErrNotFound) {
		return s.notOpen(ctx, sessionID)
	}
	if err != nil {
		return fmt.Errorf("append session message: %w", err)
	}
	return nil
}

// CloseSession implements SessionService. On success the user's envelope is
// invalidated and enrichment of the summary is scheduled.
func (s *Service) CloseSession(ctx context.Context, sessionID, summary string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != store.SessionStatusOpen {
		return ErrSessionNotOpen
	}

	summary = strings.TrimSpace(summary)
	err = s.store.CloseSession(ctx, &store.CloseSession{
		ID:       sessionID,
		Summary:  summary,
		ClosedAt: s.clock.Now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotOpen
	}
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	if s.hooks != nil {
		_ = s.hooks.InvalidateCache(ctx, session.UserID, session.GuildID)
		if summary != "" {
			s.hooks.OnSessionClosed(session.UserID, session.GuildID, summary)
		}
	}
	return nil
}

// ArchiveExpired implements SessionService.
func (s *Service) ArchiveExpired(ctx context.Context, retentionDays int) (*ArchiveResult, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	now := s.clock.Now()
	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)

	result := &ArchiveResult{}
	archived, err := s.store.ArchiveSessions(ctx, &store.ArchiveSessions{ClosedBefore: cutoff, ArchivedAt: now})
	if err != nil {
		return result, fmt.Errorf("archive sessions: %w", err)
	}
	result.Archived = int64(len(archived))
	result.CachesInvalidated = s.invalidateArchived(ctx, archived)

	deleted, err := s.store.DeleteStaleSessions(ctx, &store.DeleteStaleSessions{CreatedBefore: cutoff})
	if err != nil {
		return result, fmt.Errorf("delete stale sessions: %w", err)
	}
	result.Deleted = deleted

	if result.Archived > 0 || deleted > 0 {
		slog.Info("session retention applied",
			"retention_days", retentionDays,
			"archived", result.Archived,
			"deleted", deleted,
			"caches_invalidated", result.CachesInvalidated,
		)
	}
	return result, nil
}

// invalidateArchived drops the envelope of every scope that lost a CLOSED
// session, since recent_context only reads CLOSED ones.
func (s *Service) invalidateArchived(ctx context.Context, archived []*store.ArchivedSession) int {
	if s.hooks == nil {
		return 0
	}
	seen := make(map[[2]string]bool, len(archived))
	invalidated := 0
	for _, a := range archived {
		key := [2]string{a.UserID, a.GuildID}
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := s.hooks.InvalidateCache(ctx, a.UserID, a.GuildID); err != nil {
			slog.Warn("failed to invalidate envelope after archiving",
				"user_id", a.UserID,
				"guild_id", a.GuildID,
				"error", err,
			)
			continue
		}
		invalidated++
	}
	return invalidated
}

func (s *Service) notOpen(ctx context.Context, sessionID string) error {
	session, err := s.store.GetSession(ctx, sessionID)
	if err == nil && session == nil {
		return ErrSessionNotFound
	}
	return ErrSessionNotOpen
}

// Ensure Service implements SessionService interface.
var _ SessionService = (*Service)(nil)
