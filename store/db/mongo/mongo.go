package mongo

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hrygo/guildmind/internal/profile"
	"github.com/hrygo/guildmind/store"
)

// ============================================================================
// MONGODB SUPPORT (Document store)
// ============================================================================
// A profile is one document with its facts embedded in memorable_facts, so
// every fact mutation is a single-document update. Sessions and narratives
// live in their own collections.
// ============================================================================

const (
	defaultDatabase = "guildmind"

	profileCollection   = "user_profile"
	sessionCollection   = "conversation_session"
	narrativeCollection = "shared_narrative"
)

type DB struct {
	client  *mongo.Client
	db      *mongo.Database
	profile *profile.Profile
}

// NewDB connects to the MongoDB deployment at profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Nested documents decode as maps so preferences round-trip as plain JSON values.
	clientOptions := options.Client().
		ApplyURI(profile.DSN).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "failed to ping mongodb")
	}

	name := profile.MongoDatabase
	if name == "" {
		name = defaultDatabase
	}
	slog.Info("connected to mongodb", "database", name)

	return &DB{client: client, db: client.Database(name), profile: profile}, nil
}

func (d *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	names, err := d.db.ListCollectionNames(ctx, bson.M{"name": profileCollection})
	if err != nil {
		return false, errors.Wrap(err, "failed to list collections")
	}
	return len(names) > 0, nil
}

// EnsureIndexes creates the indexes the queries rely on. It is idempotent.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		profileCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "guild_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("idx_user_profile_scope"),
			},
		},
		sessionCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "guild_id", Value: 1}, {Key: "status", Value: 1}, {Key: "closed_ts", Value: -1}},
				Options: options.Index().SetName("idx_conversation_session_scope"),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "closed_ts", Value: 1}},
				Options: options.Index().SetName("idx_conversation_session_closed"),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_ts", Value: 1}},
				Options: options.Index().SetName("idx_conversation_session_created"),
			},
		},
		narrativeCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "guild_id", Value: 1}, {Key: "created_ts", Value: 1}},
				Options: options.Index().SetName("idx_shared_narrative_scope"),
			},
		},
	}

	for collection, models := range indexes {
		if _, err := d.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "failed to create indexes on %s", collection)
		}
	}
	return nil
}

func (d *DB) profiles() *mongo.Collection {
	return d.db.Collection(profileCollection)
}

func (d *DB) sessions() *mongo.Collection {
	return d.db.Collection(sessionCollection)
}

func (d *DB) narratives() *mongo.Collection {
	return d.db.Collection(narrativeCollection)
}

func scopeFilter(userID, guildID string) bson.M {
	return bson.M{"user_id": userID, "guild_id": guildID}
}

func fromUnix(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

func fromUnixPtr(ts *int64) *time.Time {
	if ts == nil {
		return nil
	}
	t := fromUnix(*ts)
	return &t
}

func toUnixPtr(t *time.Time) *int64 {
	if t == nil || t.IsZero() {
		return nil
	}
	ts := t.Unix()
	return &ts
}
