package store

import "time"

// SharedNarrative is a non-factual "warm memory" record.
// It never decays and is never read by inference.
type SharedNarrative struct {
	ID        string
	UserID    string
	GuildID   string
	Memory    string
	Tone      string
	CreatedAt time.Time
	ExpiresAt *time.Time
	Deletable bool
}

// FindSharedNarrative specifies the conditions for listing narratives.
type FindSharedNarrative struct {
	UserID  string
	GuildID string
	// ActiveAt filters out rows whose expiry is at or before this instant.
	ActiveAt *time.Time
	Limit    int
}

// DeleteSharedNarrative deletes deletable narratives with exactly this text.
type DeleteSharedNarrative struct {
	UserID  string
	GuildID *string
	Memory  string
}
