package test

import (
	"context"
	"testing"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/guildmind/store"
)

func newScope() (string, string) {
	return "user-" + shortuuid.New(), "guild-" + shortuuid.New()
}

func TestUserProfileStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	userID, guildID := newScope()

	t.Run("get missing profile returns nil", func(t *testing.T) {
		p, err := ts.GetUserProfile(ctx, &store.FindUserProfile{UserID: &userID, GuildID: &guildID})
		require.NoError(t, err)
		require.Nil(t, p)
	})

	t.Run("upsert creates profile", func(t *testing.T) {
		p, err := ts.UpsertUserProfile(ctx, &store.UpsertUserProfile{UserID: userID, GuildID: guildID, Name: "Ada", Nickname: "ada"})
		require.NoError(t, err)
		require.Equal(t, userID, p.UserID)
		require.Equal(t, guildID, p.GuildID)
		require.Equal(t, "Ada", p.Name)
		require.Empty(t, p.Domains)
		require.Empty(t, p.Preferences)
	})

	t.Run("upsert with empty name keeps identity", func(t *testing.T) {
		p, err := ts.UpsertUserProfile(ctx, &store.UpsertUserProfile{UserID: userID, GuildID: guildID, Nickname: "lovelace"})
		require.NoError(t, err)
		require.Equal(t, "Ada", p.Name)
		require.Equal(t, "lovelace", p.Nickname)
	})

	t.Run("get returns profile with empty facts", func(t *testing.T) {
		p, err := ts.GetUserProfile(ctx, &store.FindUserProfile{UserID: &userID, GuildID: &guildID})
		require.NoError(t, err)
		require.NotNil(t, p)
		require.Empty(t, p.Facts)
		require.NotNil(t, p.Preferences)
	})

	t.Run("list filters by guild", func(t *testing.T) {
		otherUser := "user-" + shortuuid.New()
		_, err := ts.UpsertUserProfile(ctx, &store.UpsertUserProfile{UserID: otherUser, GuildID: guildID})
		require.NoError(t, err)

		list, err := ts.ListUserProfiles(ctx, &store.FindUserProfile{GuildID: &guildID})
		require.NoError(t, err)
		require.Len(t, list, 2)

		list, err = ts.ListUserProfiles(ctx, &store.FindUserProfile{GuildID: &guildID, Limit: 1})
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("same user in another guild is a separate profile", func(t *testing.T) {
		otherGuild := "guild-" + shortuuid.New()
		p, err := ts.GetUserProfile(ctx, &store.FindUserProfile{UserID: &userID, GuildID: &otherGuild})
		require.NoError(t, err)
		require.Nil(t, p)
	})
}

func TestMergeUserProfile(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	userID, guildID := newScope()
	find := &store.FindUserProfile{UserID: &userID, GuildID: &guildID}

	t.Run("merge creates missing profile", func(t *testing.T) {
		level := "beginner"
		err := ts.MergeUserProfile(ctx, &store.MergeUserProfile{
			UserID:        userID,
			GuildID:       guildID,
			Domains:       []string{"golang", "databases"},
			Preferences:   map[string]any{"tone": "casual"},
			LearningLevel: &level,
		})
		require.NoError(t, err)

		p, err := ts.GetUserProfile(ctx, find)
		require.NoError(t, err)
		require.NotNil(t, p)
		require.Equal(t, []string{"golang", "databases"}, p.Domains)
		require.Equal(t, "casual", p.Preferences["tone"])
		require.Equal(t, "beginner", p.LearningLevel)
	})

	t.Run("merge unions domains and overlays preferences", func(t *testing.T) {
		err := ts.MergeUserProfile(ctx, &store.MergeUserProfile{
			UserID:      userID,
			GuildID:     guildID,
			Domains:     []string{"GoLang", "music"},
			Preferences: map[string]any{"tone": "formal", "emoji": false},
		})
		require.NoError(t, err)

		p, err := ts.GetUserProfile(ctx, find)
		require.NoError(t, err)
		require.Equal(t, []string{"golang", "databases", "music"}, p.Domains)
		require.Equal(t, "formal", p.Preferences["tone"])
		require.Equal(t, false, p.Preferences["emoji"])
		// Unset learning level is left alone.
		require.Equal(t, "beginner", p.LearningLevel)
	})
}

func TestDeleteUserProfile(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	userID, guildID := newScope()

	_, err := ts.AppendMemorableFact(ctx, &store.MemorableFact{UserID: userID, GuildID: guildID, Text: "likes chess", Confidence: 0.7})
	require.NoError(t, err)
	_, err = ts.CreateSharedNarrative(ctx, &store.SharedNarrative{UserID: userID, GuildID: guildID, Memory: "we argued about tabs", Deletable: true})
	require.NoError(t, err)

	require.NoError(t, ts.DeleteUserProfile(ctx, &store.DeleteUserProfile{UserID: userID, GuildID: guildID}))

	p, err := ts.GetUserProfile(ctx, &store.FindUserProfile{UserID: &userID, GuildID: &guildID})
	require.NoError(t, err)
	require.Nil(t, p)

	facts, err := ts.ListMemorableFacts(ctx, &store.FindMemorableFact{UserID: userID, GuildID: guildID})
	require.NoError(t, err)
	require.Empty(t, facts)

	narratives, err := ts.ListSharedNarratives(ctx, &store.FindSharedNarrative{UserID: userID, GuildID: guildID})
	require.NoError(t, err)
	require.Empty(t, narratives)
}
