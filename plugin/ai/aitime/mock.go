package aitime

import (
	"sync"
	"time"
)

// MockClock is a manually driven Clock for tests.
type MockClock struct {
	mu sync.RWMutex
	// FixedNow is the instant returned by Now.
	FixedNow time.Time
}

// NewMockClock creates a MockClock pinned at now.
func NewMockClock(now time.Time) *MockClock {
	return &MockClock{FixedNow: now}
}

// Now implements Clock.
func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.FixedNow
}

// Advance moves the clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FixedNow = m.FixedNow.Add(d)
}

// Set pins the clock at t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FixedNow = t
}

var _ Clock = (*MockClock)(nil)
