package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hrygo/guildmind/store"
)

type profileDoc struct {
	UserID        string         `bson:"user_id"`
	GuildID       string         `bson:"guild_id"`
	Name          string         `bson:"name"`
	Nickname      string         `bson:"nickname"`
	Domains       []string       `bson:"domains"`
	Preferences   map[string]any `bson:"preferences"`
	LearningLevel string         `bson:"learning_level"`
	Facts         []factDoc      `bson:"memorable_facts,omitempty"`
	CreatedTs     int64          `bson:"created_ts"`
	UpdatedTs     int64          `bson:"updated_ts"`
}

func (doc *profileDoc) toStore() *store.UserProfile {
	p := &store.UserProfile{
		UserID:        doc.UserID,
		GuildID:       doc.GuildID,
		Name:          doc.Name,
		Nickname:      doc.Nickname,
		Domains:       doc.Domains,
		Preferences:   doc.Preferences,
		LearningLevel: doc.LearningLevel,
		CreatedAt:     fromUnix(doc.CreatedTs),
		UpdatedAt:     fromUnix(doc.UpdatedTs),
	}
	if p.Domains == nil {
		p.Domains = []string{}
	}
	if p.Preferences == nil {
		p.Preferences = map[string]any{}
	}
	return p
}

// emptyProfileFields are the defaults written when an update creates a profile.
func emptyProfileFields(now int64) bson.M {
	return bson.M{
		"name":            "",
		"nickname":        "",
		"domains":         bson.A{},
		"preferences":     bson.M{},
		"learning_level":  "",
		"memorable_facts": bson.A{},
		"created_ts":      now,
	}
}

func (d *DB) UpsertUserProfile(ctx context.Context, upsert *store.UpsertUserProfile) (*store.UserProfile, error) {
	now := time.Now().Unix()
	set := bson.M{"updated_ts": now}
	onInsert := emptyProfileFields(now)
	if upsert.Name != "" {
		set["name"] = upsert.Name
		delete(onInsert, "name")
	}
	if upsert.Nickname != "" {
		set["nickname"] = upsert.Nickname
		delete(onInsert, "nickname")
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"memorable_facts": 0})

	var doc profileDoc
	err := d.profiles().FindOneAndUpdate(ctx,
		scopeFilter(upsert.UserID, upsert.GuildID),
		bson.M{"$set": set, "$setOnInsert": onInsert},
		opts,
	).Decode(&doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert user_profile")
	}
	return doc.toStore(), nil
}

func (d *DB) GetUserProfile(ctx context.Context, find *store.FindUserProfile) (*store.UserProfile, error) {
	if find == nil || find.UserID == nil || find.GuildID == nil {
		return nil, errors.New("user_id and guild_id are required")
	}

	var doc profileDoc
	err := d.profiles().FindOne(ctx, scopeFilter(*find.UserID, *find.GuildID)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get user_profile")
	}

	p := doc.toStore()
	p.Facts = factsFromDocs(doc.UserID, doc.GuildID, doc.Facts)
	return p, nil
}

func (d *DB) ListUserProfiles(ctx context.Context, find *store.FindUserProfile) ([]*store.UserProfile, error) {
	filter := bson.M{}
	opts := options.Find().
		SetProjection(bson.M{"memorable_facts": 0}).
		SetSort(bson.D{{Key: "guild_id", Value: 1}, {Key: "user_id", Value: 1}})
	if find != nil {
		if find.UserID != nil {
			filter["user_id"] = *find.UserID
		}
		if find.GuildID != nil {
			filter["guild_id"] = *find.GuildID
		}
		if find.Limit > 0 {
			opts.SetLimit(int64(find.Limit))
			if find.Offset > 0 {
				opts.SetSkip(int64(find.Offset))
			}
		}
	}

	cursor, err := d.profiles().Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user_profiles")
	}
	defer cursor.Close(ctx)

	list := make([]*store.UserProfile, 0)
	for cursor.Next(ctx) {
		var doc profileDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "failed to decode user_profile")
		}
		list = append(list, doc.toStore())
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate user_profiles")
	}
	return list, nil
}

// MergeUserProfile is one pipeline update: a case-insensitive domain union,
// a top-level preference merge and an optional learning level overwrite.
func (d *DB) MergeUserProfile(ctx context.Context, merge *store.MergeUserProfile) error {
	now := time.Now().Unix()

	domains := store.UnionDomains(nil, merge.Domains)
	lowered := bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: "$$value"},
		{Key: "as", Value: "d"},
		{Key: "in", Value: bson.D{{Key: "$toLower", Value: "$$d"}}},
	}}}
	union := bson.D{{Key: "$reduce", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$literal", Value: domains}}},
		{Key: "initialValue", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$domains", bson.A{}}}}},
		{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$in", Value: bson.A{bson.D{{Key: "$toLower", Value: "$$this"}}, lowered}}},
			"$$value",
			bson.D{{Key: "$concatArrays", Value: bson.A{"$$value", bson.A{"$$this"}}}},
		}}}},
	}}}

	prefs := merge.Preferences
	if prefs == nil {
		prefs = map[string]any{}
	}
	var learningLevel any = bson.D{{Key: "$ifNull", Value: bson.A{"$learning_level", ""}}}
	if merge.LearningLevel != nil {
		learningLevel = bson.D{{Key: "$literal", Value: *merge.LearningLevel}}
	}

	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "name", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$name", ""}}}},
		{Key: "nickname", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$nickname", ""}}}},
		{Key: "domains", Value: union},
		{Key: "preferences", Value: bson.D{{Key: "$mergeObjects", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$preferences", bson.M{}}}},
			bson.D{{Key: "$literal", Value: prefs}},
		}}}},
		{Key: "learning_level", Value: learningLevel},
		{Key: "memorable_facts", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$memorable_facts", bson.A{}}}}},
		{Key: "created_ts", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$created_ts", now}}}},
		{Key: "updated_ts", Value: now},
	}}}}

	if _, err := d.profiles().UpdateOne(ctx, scopeFilter(merge.UserID, merge.GuildID), pipeline, options.Update().SetUpsert(true)); err != nil {
		return errors.Wrap(err, "failed to merge user_profile")
	}
	return nil
}

// DeleteUserProfile removes the profile document (facts are embedded) and then its narratives.
func (d *DB) DeleteUserProfile(ctx context.Context, delete *store.DeleteUserProfile) error {
	if delete == nil || delete.UserID == "" || delete.GuildID == "" {
		return errors.New("no condition to delete user_profile")
	}
	filter := scopeFilter(delete.UserID, delete.GuildID)
	if _, err := d.profiles().DeleteOne(ctx, filter); err != nil {
		return errors.Wrap(err, "failed to delete user_profile")
	}
	if _, err := d.narratives().DeleteMany(ctx, filter); err != nil {
		return errors.Wrap(err, "failed to delete shared_narratives")
	}
	return nil
}
