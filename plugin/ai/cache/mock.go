package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockCacheService is an in-memory CacheService that records invalidations.
// Entries never expire; TTL behaviour is covered by LRUCache tests.
type MockCacheService struct {
	mu            sync.Mutex
	store         map[string][]byte
	invalidations []string

	// InvalidateErr, when set, is returned by Invalidate after the entries are removed.
	InvalidateErr error
}

// NewMockCacheService creates a new MockCacheService.
func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		store: make(map[string][]byte),
	}
}

// Get retrieves a value from cache.
func (m *MockCacheService) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.store[key]
	return value, ok
}

// Set stores a value in cache.
func (m *MockCacheService) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store[key] = value
	return nil
}

// Invalidate invalidates cache entries.
func (m *MockCacheService) Invalidate(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invalidations = append(m.invalidations, pattern)
	prefix, wildcard := isWildcard(pattern)
	if !wildcard {
		delete(m.store, pattern)
		return m.InvalidateErr
	}
	for key := range m.store {
		if strings.HasPrefix(key, prefix) {
			delete(m.store, key)
		}
	}
	return m.InvalidateErr
}

// Invalidations returns every pattern passed to Invalidate, in order.
func (m *MockCacheService) Invalidations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.invalidations...)
}

// Size returns the number of items in the cache.
func (m *MockCacheService) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

var _ CacheService = (*MockCacheService)(nil)
