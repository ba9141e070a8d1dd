// Package narrative stores shared narratives: warm, non-factual memories kept
// for tone and continuity. They never decay and are never read by inference.
package narrative

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

// MinMemoryLength is the shortest narrative text accepted.
const MinMemoryLength = 10

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// ErrMemoryTooShort is returned for narratives under MinMemoryLength characters.
var ErrMemoryTooShort = errors.New("narrative: memory too short")

// Create describes a new shared narrative.
type Create struct {
	UserID  string
	GuildID string
	Memory  string
	Tone    string
	// AutoExpireDays > 0 sets an expiry that many days from now.
	AutoExpireDays int
}

// Service reads and writes shared narratives.
type Service struct {
	store *store.Store
	clock aitime.Clock
}

// NewService creates a narrative service.
func NewService(s *store.Store, clock aitime.Clock) *Service {
	return &Service{store: s, clock: aitime.OrSystem(clock)}
}

// Create stores a narrative.
func (s *Service) Create(ctx context.Context, create *Create) (*store.SharedNarrative, error) {
	memory := strings.TrimSpace(create.Memory)
	if len([]rune(memory)) < MinMemoryLength {
		return nil, fmt.Errorf("%w: %d characters, need %d", ErrMemoryTooShort, len([]rune(memory)), MinMemoryLength)
	}
	if create.UserID == "" || create.GuildID == "" {
		return nil, errors.New("narrative: user_id and guild_id are required")
	}

	now := s.clock.Now()
	n := &store.SharedNarrative{
		UserID:    create.UserID,
		GuildID:   create.GuildID,
		Memory:    memory,
		Tone:      strings.TrimSpace(create.Tone),
		CreatedAt: now,
		Deletable: true,
	}
	if create.AutoExpireDays > 0 {
		expires := now.Add(time.Duration(create.AutoExpireDays) * 24 * time.Hour)
		n.ExpiresAt = &expires
	}
	return s.store.CreateSharedNarrative(ctx, n)
}

// AddSharedNarrative stores a narrative and reports success.
func (s *Service) AddSharedNarrative(ctx context.Context, userID, guildID, memory, tone string, autoExpireDays int) bool {
	_, err := s.Create(ctx, &Create{
		UserID:         userID,
		GuildID:        guildID,
		Memory:         memory,
		Tone:           tone,
		AutoExpireDays: autoExpireDays,
	})
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, ErrMemoryTooShort) {
			level = slog.LevelDebug
		}
		slog.Log(ctx, level, "shared narrative not added", "user_id", userID, "guild_id", guildID, "error", err)
		return false
	}
	return true
}

// GetSharedNarratives returns the unexpired narratives of a scope, oldest first.
func (s *Service) GetSharedNarratives(ctx context.Context, userID, guildID string, limit int) ([]*store.SharedNarrative, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	now := s.clock.Now()
	list, err := s.store.ListSharedNarratives(ctx, &store.FindSharedNarrative{
		UserID:   userID,
		GuildID:  guildID,
		ActiveAt: &now,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list shared narratives: %w", err)
	}
	return list, nil
}

// DeleteSharedNarrative deletes the user's deletable narratives whose text is
// exactly memory. An empty guildID matches every guild.
func (s *Service) DeleteSharedNarrative(ctx context.Context, userID, guildID, memory string) bool {
	del := &store.DeleteSharedNarrative{UserID: userID, Memory: strings.TrimSpace(memory)}
	if guildID != "" {
		del.GuildID = &guildID
	}
	n, err := s.store.DeleteSharedNarrative(ctx, del)
	if err != nil {
		slog.Error("failed to delete shared narrative", "user_id", userID, "guild_id", guildID, "error", err)
		return false
	}
	return n > 0
}
