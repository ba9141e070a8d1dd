package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hrygo/guildmind/store"
)

// MockSessionService is an in-memory SessionService for testing.
type MockSessionService struct {
	mu       sync.Mutex
	sessions map[string]*store.Session

	// ArchiveResult and ArchiveErr are returned by ArchiveExpired.
	ArchiveResult ArchiveResult
	ArchiveErr    error
	// ArchiveCalls records the retention passed to ArchiveExpired.
	ArchiveCalls []int
}

// NewMockSessionService creates a new MockSessionService.
func NewMockSessionService() *MockSessionService {
	return &MockSessionService{sessions: make(map[string]*store.Session)}
}

func (m *MockSessionService) OpenSession(_ context.Context, userID, guildID, channelID string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &store.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		GuildID:   guildID,
		ChannelID: channelID,
		Status:    store.SessionStatusOpen,
		Messages:  []store.SessionMessage{},
		CreatedAt: time.Now(),
	}
	m.sessions[s.ID] = s
	copied := *s
	return &copied, nil
}

func (m *MockSessionService) GetSession(_ context.Context, sessionID string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *MockSessionService) AppendMessage(_ context.Context, sessionID string, msg store.SessionMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Status != store.SessionStatusOpen {
		return ErrSessionNotOpen
	}
	s.Messages = append(s.Messages, msg)
	return nil
}

func (m *MockSessionService) CloseSession(_ context.Context, sessionID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Status != store.SessionStatusOpen {
		return ErrSessionNotOpen
	}
	now := time.Now()
	s.Status = store.SessionStatusClosed
	s.Summary = summary
	s.ClosedAt = &now
	return nil
}

func (m *MockSessionService) ArchiveExpired(_ context.Context, retentionDays int) (*ArchiveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArchiveCalls = append(m.ArchiveCalls, retentionDays)
	result := m.ArchiveResult
	return &result, m.ArchiveErr
}

// Ensure MockSessionService implements SessionService interface.
var _ SessionService = (*MockSessionService)(nil)
