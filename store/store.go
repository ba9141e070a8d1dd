package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/guildmind/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) UpsertUserProfile(ctx context.Context, upsert *UpsertUserProfile) (*UserProfile, error) {
	return s.driver.UpsertUserProfile(ctx, upsert)
}

// GetUserProfile returns the profile with its facts, or nil when it does not exist.
func (s *Store) GetUserProfile(ctx context.Context, find *FindUserProfile) (*UserProfile, error) {
	p, err := s.driver.GetUserProfile(ctx, find)
	if err != nil || p == nil {
		return p, err
	}
	for _, f := range p.Facts {
		NormalizeFact(f)
	}
	if p.Preferences == nil {
		p.Preferences = map[string]any{}
	}
	return p, nil
}

func (s *Store) ListUserProfiles(ctx context.Context, find *FindUserProfile) ([]*UserProfile, error) {
	return s.driver.ListUserProfiles(ctx, find)
}

func (s *Store) MergeUserProfile(ctx context.Context, merge *MergeUserProfile) error {
	return s.driver.MergeUserProfile(ctx, merge)
}

func (s *Store) DeleteUserProfile(ctx context.Context, delete *DeleteUserProfile) error {
	return s.driver.DeleteUserProfile(ctx, delete)
}

// AppendMemorableFact assigns an ID when missing and appends the fact,
// creating the owning profile if needed.
func (s *Store) AppendMemorableFact(ctx context.Context, create *MemorableFact) (*MemorableFact, error) {
	if create.ID == "" {
		create.ID = shortuuid.New()
	}
	NormalizeFact(create)
	return s.driver.AppendMemorableFact(ctx, create)
}

func (s *Store) ListMemorableFacts(ctx context.Context, find *FindMemorableFact) ([]*MemorableFact, error) {
	list, err := s.driver.ListMemorableFacts(ctx, find)
	if err != nil {
		return nil, err
	}
	for _, f := range list {
		NormalizeFact(f)
	}
	return list, nil
}

func (s *Store) ReinforceMemorableFact(ctx context.Context, reinforce *ReinforceMemorableFact) error {
	return s.driver.ReinforceMemorableFact(ctx, reinforce)
}

func (s *Store) ApplyFactChanges(ctx context.Context, changes *FactChanges) (*AppliedFactChanges, error) {
	if changes.IsEmpty() {
		return &AppliedFactChanges{}, nil
	}
	return s.driver.ApplyFactChanges(ctx, changes)
}

// CreateSession assigns a fresh ID and stores the session as OPEN.
func (s *Store) CreateSession(ctx context.Context, create *Session) (*Session, error) {
	if create.ID == "" {
		create.ID = uuid.NewString()
	}
	create.Status = SessionStatusOpen
	if create.Messages == nil {
		create.Messages = []SessionMessage{}
	}
	return s.driver.CreateSession(ctx, create)
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.driver.GetSession(ctx, id)
}

func (s *Store) GetLatestClosedSession(ctx context.Context, userID, guildID string) (*Session, error) {
	return s.driver.GetLatestClosedSession(ctx, userID, guildID)
}

func (s *Store) AppendSessionMessage(ctx context.Context, append *AppendSessionMessage) error {
	return s.driver.AppendSessionMessage(ctx, append)
}

func (s *Store) CloseSession(ctx context.Context, close *CloseSession) error {
	return s.driver.CloseSession(ctx, close)
}

func (s *Store) ArchiveSessions(ctx context.Context, archive *ArchiveSessions) ([]*ArchivedSession, error) {
	return s.driver.ArchiveSessions(ctx, archive)
}

func (s *Store) DeleteStaleSessions(ctx context.Context, delete *DeleteStaleSessions) (int64, error) {
	return s.driver.DeleteStaleSessions(ctx, delete)
}

func (s *Store) CreateSharedNarrative(ctx context.Context, create *SharedNarrative) (*SharedNarrative, error) {
	if create.ID == "" {
		create.ID = shortuuid.New()
	}
	create.Memory = strings.TrimSpace(create.Memory)
	return s.driver.CreateSharedNarrative(ctx, create)
}

func (s *Store) ListSharedNarratives(ctx context.Context, find *FindSharedNarrative) ([]*SharedNarrative, error) {
	return s.driver.ListSharedNarratives(ctx, find)
}

func (s *Store) DeleteSharedNarrative(ctx context.Context, delete *DeleteSharedNarrative) (int64, error) {
	return s.driver.DeleteSharedNarrative(ctx, delete)
}
