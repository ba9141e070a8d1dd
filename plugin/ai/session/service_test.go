package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hrygo/guildmind/plugin/ai/aitime"
	"github.com/hrygo/guildmind/store"
	teststore "github.com/hrygo/guildmind/store/test"
)

type recordingHooks struct {
	mu          sync.Mutex
	invalidated []string
	closed      []string
}

func (h *recordingHooks) InvalidateCache(_ context.Context, userID, guildID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invalidated = append(h.invalidated, guildID+"/"+userID)
	return nil
}

func (h *recordingHooks) OnSessionClosed(_, _, summary string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, summary)
	return true
}

func newTestService(t *testing.T) (*Service, *store.Store, *aitime.MockClock, *recordingHooks) {
	t.Helper()
	ts := teststore.NewTestingStore(context.Background(), t)
	clock := aitime.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	hooks := &recordingHooks{}
	return NewService(ts, clock, hooks), ts, clock, hooks
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, _, hooks := newTestService(t)

	s, err := svc.OpenSession(ctx, "u1", "g1", "c1")
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if s.Status != store.SessionStatusOpen {
		t.Errorf("expected OPEN, got %s", s.Status)
	}

	other, err := svc.OpenSession(ctx, "u1", "g1", "c1")
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if other.ID == s.ID {
		t.Errorf("expected a new session ID per conversation")
	}

	for _, content := range []string{"hi", "hello!"} {
		if err := svc.AppendMessage(ctx, s.ID, store.SessionMessage{Role: "user", Content: content}); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	if err := svc.CloseSession(ctx, s.ID, "  Greeted each other.  "); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}

	got, err := svc.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != store.SessionStatusClosed {
		t.Errorf("expected CLOSED, got %s", got.Status)
	}
	if got.Summary != "Greeted each other." {
		t.Errorf("unexpected summary %q", got.Summary)
	}
	if len(got.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(got.Messages))
	}
	if len(hooks.invalidated) != 1 || hooks.invalidated[0] != "g1/u1" {
		t.Errorf("expected envelope invalidation for g1/u1, got %v", hooks.invalidated)
	}
	if len(hooks.closed) != 1 || hooks.closed[0] != "Greeted each other." {
		t.Errorf("expected enrichment of the summary, got %v", hooks.closed)
	}

	t.Run("closed session never reopens", func(t *testing.T) {
		if err := svc.CloseSession(ctx, s.ID, "again"); !errors.Is(err, ErrSessionNotOpen) {
			t.Errorf("expected ErrSessionNotOpen, got %v", err)
		}
		if err := svc.AppendMessage(ctx, s.ID, store.SessionMessage{Role: "user", Content: "late"}); !errors.Is(err, ErrSessionNotOpen) {
			t.Errorf("expected ErrSessionNotOpen, got %v", err)
		}
		if len(hooks.closed) != 1 {
			t.Errorf("expected no further enrichment, got %v", hooks.closed)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		if _, err := svc.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
		if err := svc.AppendMessage(ctx, "missing", store.SessionMessage{Role: "user"}); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("empty summary skips enrichment", func(t *testing.T) {
		if err := svc.CloseSession(ctx, other.ID, ""); err != nil {
			t.Fatalf("CloseSession failed: %v", err)
		}
		if len(hooks.closed) != 1 {
			t.Errorf("expected no enrichment for empty summary, got %v", hooks.closed)
		}
	})
}

func TestArchiveExpired(t *testing.T) {
	ctx := context.Background()
	svc, _, clock, hooks := newTestService(t)

	closed, _ := svc.OpenSession(ctx, "u1", "g1", "c1")
	if err := svc.AppendMessage(ctx, closed.ID, store.SessionMessage{Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := svc.CloseSession(ctx, closed.ID, "Said hello."); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	abandoned, _ := svc.OpenSession(ctx, "u1", "g1", "c2")

	clock.Advance(10 * 24 * time.Hour)
	recent, _ := svc.OpenSession(ctx, "u2", "g1", "c1")
	if err := svc.CloseSession(ctx, recent.ID, "Recent chat."); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}

	clock.Advance(25 * 24 * time.Hour)
	hooks.invalidated = nil
	result, err := svc.ArchiveExpired(ctx, 30)
	if err != nil {
		t.Fatalf("ArchiveExpired failed: %v", err)
	}
	if result.Archived != 1 || result.Deleted != 1 {
		t.Errorf("expected 1 archived and 1 deleted, got %+v", result)
	}
	if result.CachesInvalidated != 1 || len(hooks.invalidated) != 1 || hooks.invalidated[0] != "g1/u1" {
		t.Errorf("expected the archived scope's envelope to be invalidated, got %d %v", result.CachesInvalidated, hooks.invalidated)
	}

	got, err := svc.GetSession(ctx, closed.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != store.SessionStatusArchived || len(got.Messages) != 0 || got.Summary != "Said hello." {
		t.Errorf("unexpected archived session: status=%s messages=%d summary=%q", got.Status, len(got.Messages), got.Summary)
	}
	if _, err := svc.GetSession(ctx, abandoned.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected abandoned session to be deleted, got %v", err)
	}
	if got, _ := svc.GetSession(ctx, recent.ID); got == nil || got.Status != store.SessionStatusClosed {
		t.Errorf("expected recent session to stay CLOSED")
	}
}
