package test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/guildmind/store"
)

func TestSharedNarrativeStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	userID, guildID := newScope()
	now := time.Now().UTC().Truncate(time.Second)
	expired := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	inputs := []*store.SharedNarrative{
		{UserID: userID, GuildID: guildID, Memory: "we named the server cat Biscuit", Tone: "playful", CreatedAt: now.Add(-3 * time.Minute), Deletable: true},
		{UserID: userID, GuildID: guildID, Memory: "the great pineapple pizza debate", CreatedAt: now.Add(-2 * time.Minute), ExpiresAt: &expired, Deletable: true},
		{UserID: userID, GuildID: guildID, Memory: "the launch night outage", CreatedAt: now.Add(-time.Minute), ExpiresAt: &future, Deletable: false},
	}
	for _, n := range inputs {
		created, err := ts.CreateSharedNarrative(ctx, n)
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
	}

	t.Run("list without active filter returns all", func(t *testing.T) {
		list, err := ts.ListSharedNarratives(ctx, &store.FindSharedNarrative{UserID: userID, GuildID: guildID})
		require.NoError(t, err)
		require.Len(t, list, 3)
	})

	t.Run("list filters expired rows", func(t *testing.T) {
		list, err := ts.ListSharedNarratives(ctx, &store.FindSharedNarrative{UserID: userID, GuildID: guildID, ActiveAt: &now})
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, "we named the server cat Biscuit", list[0].Memory)
		require.Equal(t, "playful", list[0].Tone)
		require.Nil(t, list[0].ExpiresAt)
		require.Equal(t, "the launch night outage", list[1].Memory)
		require.NotNil(t, list[1].ExpiresAt)
		require.Equal(t, future.Unix(), list[1].ExpiresAt.Unix())
		require.False(t, list[1].Deletable)
	})

	t.Run("delete requires exact text", func(t *testing.T) {
		deleted, err := ts.DeleteSharedNarrative(ctx, &store.DeleteSharedNarrative{UserID: userID, GuildID: &guildID, Memory: "we named the server cat"})
		require.NoError(t, err)
		require.EqualValues(t, 0, deleted)
	})

	t.Run("delete skips non-deletable rows", func(t *testing.T) {
		deleted, err := ts.DeleteSharedNarrative(ctx, &store.DeleteSharedNarrative{UserID: userID, GuildID: &guildID, Memory: "the launch night outage"})
		require.NoError(t, err)
		require.EqualValues(t, 0, deleted)
	})

	t.Run("delete without guild matches every guild", func(t *testing.T) {
		deleted, err := ts.DeleteSharedNarrative(ctx, &store.DeleteSharedNarrative{UserID: userID, Memory: "we named the server cat Biscuit"})
		require.NoError(t, err)
		require.EqualValues(t, 1, deleted)

		list, err := ts.ListSharedNarratives(ctx, &store.FindSharedNarrative{UserID: userID, GuildID: guildID, ActiveAt: &now})
		require.NoError(t, err)
		require.Len(t, list, 1)
	})
}
