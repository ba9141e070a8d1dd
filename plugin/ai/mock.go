package ai

import (
	"context"
	"sync"
)

// MockLLMService is a scripted LLMService for tests.
// Each Chat call consumes the next entry of Responses/Errors; when they run
// out the last entry repeats. ChatFunc, when set, takes precedence.
type MockLLMService struct {
	mu sync.Mutex

	Responses []string
	Errors    []error
	ChatFunc  func(ctx context.Context, messages []Message) (string, error)

	calls [][]Message
}

// NewMockLLMService returns a mock answering with the given responses in order.
func NewMockLLMService(responses ...string) *MockLLMService {
	return &MockLLMService{Responses: responses}
}

func (m *MockLLMService) Chat(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, append([]Message(nil), messages...))
	fn := m.ChatFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var resp string
	var err error
	if n := len(m.Responses); n > 0 {
		resp = m.Responses[min(idx, n-1)]
	}
	if n := len(m.Errors); n > 0 {
		err = m.Errors[min(idx, n-1)]
	}
	return resp, err
}

// Calls returns the message lists passed to Chat so far.
func (m *MockLLMService) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}

// CallCount returns the number of Chat calls.
func (m *MockLLMService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
