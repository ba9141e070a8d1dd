package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hrygo/guildmind/store"
)

type narrativeDoc struct {
	ID        string `bson:"_id"`
	UserID    string `bson:"user_id"`
	GuildID   string `bson:"guild_id"`
	Memory    string `bson:"memory"`
	Tone      string `bson:"tone"`
	CreatedTs int64  `bson:"created_ts"`
	ExpiresTs *int64 `bson:"expires_ts"`
	Deletable bool   `bson:"deletable"`
}

func (doc *narrativeDoc) toStore() *store.SharedNarrative {
	return &store.SharedNarrative{
		ID:        doc.ID,
		UserID:    doc.UserID,
		GuildID:   doc.GuildID,
		Memory:    doc.Memory,
		Tone:      doc.Tone,
		CreatedAt: fromUnix(doc.CreatedTs),
		ExpiresAt: fromUnixPtr(doc.ExpiresTs),
		Deletable: doc.Deletable,
	}
}

func (d *DB) CreateSharedNarrative(ctx context.Context, create *store.SharedNarrative) (*store.SharedNarrative, error) {
	doc := narrativeDoc{
		ID:        create.ID,
		UserID:    create.UserID,
		GuildID:   create.GuildID,
		Memory:    create.Memory,
		Tone:      create.Tone,
		CreatedTs: create.CreatedAt.Unix(),
		ExpiresTs: toUnixPtr(create.ExpiresAt),
		Deletable: create.Deletable,
	}
	if _, err := d.narratives().InsertOne(ctx, doc); err != nil {
		return nil, errors.Wrap(err, "failed to create shared_narrative")
	}
	return doc.toStore(), nil
}

func (d *DB) ListSharedNarratives(ctx context.Context, find *store.FindSharedNarrative) ([]*store.SharedNarrative, error) {
	filter := scopeFilter(find.UserID, find.GuildID)
	if find.ActiveAt != nil {
		filter["$or"] = bson.A{
			bson.M{"expires_ts": nil},
			bson.M{"expires_ts": bson.M{"$gt": find.ActiveAt.Unix()}},
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_ts", Value: 1}, {Key: "_id", Value: 1}})
	if find.Limit > 0 {
		opts.SetLimit(int64(find.Limit))
	}

	cursor, err := d.narratives().Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list shared_narratives")
	}
	defer cursor.Close(ctx)

	list := make([]*store.SharedNarrative, 0)
	for cursor.Next(ctx) {
		var doc narrativeDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "failed to decode shared_narrative")
		}
		list = append(list, doc.toStore())
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate shared_narratives")
	}
	return list, nil
}

func (d *DB) DeleteSharedNarrative(ctx context.Context, delete *store.DeleteSharedNarrative) (int64, error) {
	filter := bson.M{"user_id": delete.UserID, "memory": delete.Memory, "deletable": true}
	if delete.GuildID != nil {
		filter["guild_id"] = *delete.GuildID
	}
	result, err := d.narratives().DeleteMany(ctx, filter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete shared_narrative")
	}
	return result.DeletedCount, nil
}
