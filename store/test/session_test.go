package test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/guildmind/store"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	userID, guildID := newScope()
	now := time.Now().UTC().Truncate(time.Second)

	session, err := ts.CreateSession(ctx, &store.Session{UserID: userID, GuildID: guildID, ChannelID: "general", CreatedAt: now})
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	require.Equal(t, store.SessionStatusOpen, session.Status)
	require.Empty(t, session.Messages)
	require.Nil(t, session.ClosedAt)

	t.Run("append message to open session", func(t *testing.T) {
		for _, content := range []string{"hello", "how are you"} {
			err := ts.AppendSessionMessage(ctx, &store.AppendSessionMessage{
				ID:      session.ID,
				Message: store.SessionMessage{Role: "user", Content: content, Timestamp: now},
			})
			require.NoError(t, err)
		}

		got, err := ts.GetSession(ctx, session.ID)
		require.NoError(t, err)
		require.Len(t, got.Messages, 2)
		require.Equal(t, "hello", got.Messages[0].Content)
		require.Equal(t, "how are you", got.Messages[1].Content)
		require.Equal(t, now.Unix(), got.Messages[0].Timestamp.Unix())
	})

	t.Run("close moves session to closed", func(t *testing.T) {
		err := ts.CloseSession(ctx, &store.CloseSession{ID: session.ID, Summary: "small talk", ClosedAt: now.Add(time.Minute)})
		require.NoError(t, err)

		got, err := ts.GetSession(ctx, session.ID)
		require.NoError(t, err)
		require.Equal(t, store.SessionStatusClosed, got.Status)
		require.Equal(t, "small talk", got.Summary)
		require.NotNil(t, got.ClosedAt)
		require.Equal(t, now.Add(time.Minute).Unix(), got.ClosedAt.Unix())
	})

	t.Run("closed session rejects writes", func(t *testing.T) {
		err := ts.AppendSessionMessage(ctx, &store.AppendSessionMessage{ID: session.ID, Message: store.SessionMessage{Role: "user", Content: "late"}})
		require.ErrorIs(t, err, store.ErrNotFound)

		err = ts.CloseSession(ctx, &store.CloseSession{ID: session.ID, Summary: "again", ClosedAt: now})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unknown session", func(t *testing.T) {
		got, err := ts.GetSession(ctx, "missing")
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestGetLatestClosedSession(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	userID, guildID := newScope()
	now := time.Now().UTC().Truncate(time.Second)

	latest, err := ts.GetLatestClosedSession(ctx, userID, guildID)
	require.NoError(t, err)
	require.Nil(t, latest)

	for i, summary := range []string{"older", "newer"} {
		s, err := ts.CreateSession(ctx, &store.Session{UserID: userID, GuildID: guildID, CreatedAt: now})
		require.NoError(t, err)
		require.NoError(t, ts.CloseSession(ctx, &store.CloseSession{ID: s.ID, Summary: summary, ClosedAt: now.Add(time.Duration(i) * time.Hour)}))
	}
	// An open session is never returned.
	_, err = ts.CreateSession(ctx, &store.Session{UserID: userID, GuildID: guildID, CreatedAt: now.Add(2 * time.Hour)})
	require.NoError(t, err)

	latest, err = ts.GetLatestClosedSession(ctx, userID, guildID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, "newer", latest.Summary)
}

func TestArchiveAndDeleteStaleSessions(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	userID, guildID := newScope()
	now := time.Now().UTC().Truncate(time.Second)
	cutoff := now.Add(-30 * 24 * time.Hour)

	oldClosed, err := ts.CreateSession(ctx, &store.Session{UserID: userID, GuildID: guildID, CreatedAt: cutoff.Add(-2 * time.Hour)})
	require.NoError(t, err)
	require.NoError(t, ts.AppendSessionMessage(ctx, &store.AppendSessionMessage{ID: oldClosed.ID, Message: store.SessionMessage{Role: "user", Content: "hi", Timestamp: now}}))
	require.NoError(t, ts.CloseSession(ctx, &store.CloseSession{ID: oldClosed.ID, Summary: "old", ClosedAt: cutoff.Add(-time.Hour)}))

	recentClosed, err := ts.CreateSession(ctx, &store.Session{UserID: userID, GuildID: guildID, CreatedAt: now})
	require.NoError(t, err)
	require.NoError(t, ts.CloseSession(ctx, &store.CloseSession{ID: recentClosed.ID, Summary: "recent", ClosedAt: now}))

	staleOpen, err := ts.CreateSession(ctx, &store.Session{UserID: userID, GuildID: guildID, CreatedAt: cutoff.Add(-time.Hour)})
	require.NoError(t, err)

	t.Run("archive sessions closed before cutoff", func(t *testing.T) {
		archived, err := ts.ArchiveSessions(ctx, &store.ArchiveSessions{ClosedBefore: cutoff, ArchivedAt: now})
		require.NoError(t, err)
		require.Equal(t, []*store.ArchivedSession{{ID: oldClosed.ID, UserID: userID, GuildID: guildID}}, archived)

		got, err := ts.GetSession(ctx, oldClosed.ID)
		require.NoError(t, err)
		require.Equal(t, store.SessionStatusArchived, got.Status)
		require.Empty(t, got.Messages)
		require.Equal(t, "old", got.Summary)
		require.NotNil(t, got.ArchivedAt)

		got, err = ts.GetSession(ctx, recentClosed.ID)
		require.NoError(t, err)
		require.Equal(t, store.SessionStatusClosed, got.Status)
	})

	t.Run("archived sessions are not archived twice", func(t *testing.T) {
		archived, err := ts.ArchiveSessions(ctx, &store.ArchiveSessions{ClosedBefore: cutoff, ArchivedAt: now})
		require.NoError(t, err)
		require.Empty(t, archived)
	})

	t.Run("delete abandoned open sessions", func(t *testing.T) {
		deleted, err := ts.DeleteStaleSessions(ctx, &store.DeleteStaleSessions{CreatedBefore: cutoff})
		require.NoError(t, err)
		require.EqualValues(t, 1, deleted)

		got, err := ts.GetSession(ctx, staleOpen.ID)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}
