package store

import (
	"context"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
//
// Every mutating method is a single atomic write against the backend
// (one statement, one transaction or one document update).
type Driver interface {
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// UserProfile model related methods.
	UpsertUserProfile(ctx context.Context, upsert *UpsertUserProfile) (*UserProfile, error)
	GetUserProfile(ctx context.Context, find *FindUserProfile) (*UserProfile, error)
	ListUserProfiles(ctx context.Context, find *FindUserProfile) ([]*UserProfile, error)
	MergeUserProfile(ctx context.Context, merge *MergeUserProfile) error
	DeleteUserProfile(ctx context.Context, delete *DeleteUserProfile) error

	// MemorableFact model related methods.
	AppendMemorableFact(ctx context.Context, create *MemorableFact) (*MemorableFact, error)
	ListMemorableFacts(ctx context.Context, find *FindMemorableFact) ([]*MemorableFact, error)
	ReinforceMemorableFact(ctx context.Context, reinforce *ReinforceMemorableFact) error
	ApplyFactChanges(ctx context.Context, changes *FactChanges) (*AppliedFactChanges, error)

	// Session model related methods.
	CreateSession(ctx context.Context, create *Session) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	GetLatestClosedSession(ctx context.Context, userID, guildID string) (*Session, error)
	AppendSessionMessage(ctx context.Context, append *AppendSessionMessage) error
	CloseSession(ctx context.Context, close *CloseSession) error
	ArchiveSessions(ctx context.Context, archive *ArchiveSessions) ([]*ArchivedSession, error)
	DeleteStaleSessions(ctx context.Context, delete *DeleteStaleSessions) (int64, error)

	// SharedNarrative model related methods.
	CreateSharedNarrative(ctx context.Context, create *SharedNarrative) (*SharedNarrative, error)
	ListSharedNarratives(ctx context.Context, find *FindSharedNarrative) ([]*SharedNarrative, error)
	DeleteSharedNarrative(ctx context.Context, delete *DeleteSharedNarrative) (int64, error)
}
