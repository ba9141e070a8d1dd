package store

import "time"

// SessionStatus is the lifecycle state of a conversation session.
// Transitions are one-directional: OPEN -> CLOSED -> ARCHIVED.
type SessionStatus string

const (
	SessionStatusOpen     SessionStatus = "OPEN"
	SessionStatusClosed   SessionStatus = "CLOSED"
	SessionStatusArchived SessionStatus = "ARCHIVED"
)

// SessionMessage is one turn recorded on an open session.
type SessionMessage struct {
	Role      string    `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Session is a conversation record with a summary attached at close.
type Session struct {
	ID         string
	UserID     string
	GuildID    string
	ChannelID  string
	Status     SessionStatus
	Messages   []SessionMessage
	Summary    string
	CreatedAt  time.Time
	ClosedAt   *time.Time
	ArchivedAt *time.Time
}

// AppendSessionMessage appends one message to an OPEN session.
type AppendSessionMessage struct {
	ID      string
	Message SessionMessage
}

// CloseSession moves an OPEN session to CLOSED with its summary.
type CloseSession struct {
	ID       string
	Summary  string
	ClosedAt time.Time
}

// ArchiveSessions moves CLOSED sessions closed before ClosedBefore to ARCHIVED
// and drops their message bodies.
type ArchiveSessions struct {
	ClosedBefore time.Time
	ArchivedAt   time.Time
}

// ArchivedSession identifies one session moved to ARCHIVED.
type ArchivedSession struct {
	ID      string
	UserID  string
	GuildID string
}

// DeleteStaleSessions removes OPEN sessions created before CreatedBefore.
type DeleteStaleSessions struct {
	CreatedBefore time.Time
}
