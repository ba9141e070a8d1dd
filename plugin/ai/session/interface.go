// Package session manages conversation sessions through their one-way
// lifecycle: OPEN, then CLOSED with a summary, then ARCHIVED by retention.
package session

import (
	"context"
	"errors"

	"github.com/hrygo/guildmind/store"
)

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionNotOpen is returned when writing to a session that is no longer OPEN.
	ErrSessionNotOpen = errors.New("session: not open")
)

// SessionService defines the session lifecycle operations.
type SessionService interface {
	// OpenSession starts a new conversation. Every call yields a new session ID.
	OpenSession(ctx context.Context, userID, guildID, channelID string) (*store.Session, error)

	// GetSession returns a session by ID.
	GetSession(ctx context.Context, sessionID string) (*store.Session, error)

	// AppendMessage records one turn on an OPEN session.
	AppendMessage(ctx context.Context, sessionID string, msg store.SessionMessage) error

	// CloseSession attaches the summary and closes the session.
	CloseSession(ctx context.Context, sessionID, summary string) error

	// ArchiveExpired archives CLOSED sessions and deletes abandoned OPEN
	// sessions older than retentionDays.
	ArchiveExpired(ctx context.Context, retentionDays int) (*ArchiveResult, error)
}

// ArchiveResult counts the sessions touched by ArchiveExpired.
type ArchiveResult struct {
	Archived          int64 `json:"archived"`
	Deleted           int64 `json:"deleted"`
	CachesInvalidated int   `json:"caches_invalidated"`
}

// Hooks lets the memory layer react to closed sessions.
type Hooks interface {
	InvalidateCache(ctx context.Context, userID, guildID string) error
	OnSessionClosed(userID, guildID, summary string) bool
}
