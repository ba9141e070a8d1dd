package memory

import (
	"time"

	"github.com/hrygo/guildmind/store"
)

// Envelope is the three-layer read snapshot served to the conversation layer.
type Envelope struct {
	Identity      Identity       `json:"identity"`
	Relational    Relational     `json:"relational"`
	RecentContext *RecentContext `json:"recent_context,omitempty"`
	BuiltAt       time.Time      `json:"built_at"`
}

// Identity is who the user is in a guild.
type Identity struct {
	UserID   string `json:"user_id"`
	GuildID  string `json:"guild_id"`
	Name     string `json:"name,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// Relational is a copy of the profile's relational memory taken at build time.
type Relational struct {
	Domains       []string       `json:"domains"`
	Preferences   map[string]any `json:"preferences"`
	LearningLevel string         `json:"learning_level,omitempty"`
	// Facts are in insertion order.
	Facts []Fact `json:"facts"`
}

// Fact is a memorable fact as seen by readers.
type Fact struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	Confidence    float64   `json:"confidence"`
	Category      string    `json:"category,omitempty"`
	Source        string    `json:"source,omitempty"`
	AddedAt       time.Time `json:"added_at"`
	LastConfirmed time.Time `json:"last_confirmed"`
}

// RecentContext is the summary of the latest closed session.
type RecentContext struct {
	SessionID string     `json:"session_id"`
	Summary   string     `json:"summary"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// emptyEnvelope is served for users without a profile.
func emptyEnvelope(userID, guildID string, now time.Time) *Envelope {
	return &Envelope{
		Identity: Identity{UserID: userID, GuildID: guildID},
		Relational: Relational{
			Domains:     []string{},
			Preferences: map[string]any{},
			Facts:       []Fact{},
		},
		BuiltAt: now,
	}
}

func newFact(f *store.MemorableFact) Fact {
	return Fact{
		ID:            f.ID,
		Text:          f.Text,
		Confidence:    f.Confidence,
		Category:      f.Category,
		Source:        f.Source,
		AddedAt:       f.AddedAt,
		LastConfirmed: f.LastConfirmed,
	}
}
