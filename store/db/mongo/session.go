package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hrygo/guildmind/store"
)

type sessionDoc struct {
	ID         string                 `bson:"_id"`
	UserID     string                 `bson:"user_id"`
	GuildID    string                 `bson:"guild_id"`
	ChannelID  string                 `bson:"channel_id"`
	Status     string                 `bson:"status"`
	Messages   []store.SessionMessage `bson:"messages"`
	Summary    string                 `bson:"summary"`
	CreatedTs  int64                  `bson:"created_ts"`
	ClosedTs   *int64                 `bson:"closed_ts"`
	ArchivedTs *int64                 `bson:"archived_ts"`
}

func (doc *sessionDoc) toStore() *store.Session {
	s := &store.Session{
		ID:         doc.ID,
		UserID:     doc.UserID,
		GuildID:    doc.GuildID,
		ChannelID:  doc.ChannelID,
		Status:     store.SessionStatus(doc.Status),
		Messages:   doc.Messages,
		Summary:    doc.Summary,
		CreatedAt:  fromUnix(doc.CreatedTs),
		ClosedAt:   fromUnixPtr(doc.ClosedTs),
		ArchivedAt: fromUnixPtr(doc.ArchivedTs),
	}
	if s.Messages == nil {
		s.Messages = []store.SessionMessage{}
	}
	for i := range s.Messages {
		s.Messages[i].Timestamp = s.Messages[i].Timestamp.UTC()
	}
	return s
}

func (d *DB) CreateSession(ctx context.Context, create *store.Session) (*store.Session, error) {
	doc := sessionDoc{
		ID:         create.ID,
		UserID:     create.UserID,
		GuildID:    create.GuildID,
		ChannelID:  create.ChannelID,
		Status:     string(create.Status),
		Messages:   create.Messages,
		Summary:    create.Summary,
		CreatedTs:  create.CreatedAt.Unix(),
		ClosedTs:   toUnixPtr(create.ClosedAt),
		ArchivedTs: toUnixPtr(create.ArchivedAt),
	}
	if doc.Messages == nil {
		doc.Messages = []store.SessionMessage{}
	}
	if _, err := d.sessions().InsertOne(ctx, doc); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation_session")
	}
	return doc.toStore(), nil
}

func (d *DB) GetSession(ctx context.Context, id string) (*store.Session, error) {
	return d.findOneSession(ctx, bson.M{"_id": id})
}

func (d *DB) GetLatestClosedSession(ctx context.Context, userID, guildID string) (*store.Session, error) {
	filter := scopeFilter(userID, guildID)
	filter["status"] = string(store.SessionStatusClosed)
	opts := options.FindOne().SetSort(bson.D{{Key: "closed_ts", Value: -1}, {Key: "created_ts", Value: -1}})
	return d.findOneSession(ctx, filter, opts)
}

func (d *DB) findOneSession(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*store.Session, error) {
	var doc sessionDoc
	if err := d.sessions().FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get conversation_session")
	}
	return doc.toStore(), nil
}

func (d *DB) AppendSessionMessage(ctx context.Context, append *store.AppendSessionMessage) error {
	filter := bson.M{"_id": append.ID, "status": string(store.SessionStatusOpen)}
	result, err := d.sessions().UpdateOne(ctx, filter, bson.M{"$push": bson.M{"messages": append.Message}})
	if err != nil {
		return errors.Wrap(err, "failed to append session message")
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *DB) CloseSession(ctx context.Context, close *store.CloseSession) error {
	filter := bson.M{"_id": close.ID, "status": string(store.SessionStatusOpen)}
	update := bson.M{"$set": bson.M{
		"status":    string(store.SessionStatusClosed),
		"summary":   close.Summary,
		"closed_ts": close.ClosedAt.Unix(),
	}}
	result, err := d.sessions().UpdateOne(ctx, filter, update)
	if err != nil {
		return errors.Wrap(err, "failed to close session")
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ArchiveSessions archives matching sessions one document at a time so each
// archived session's scope is known to the caller.
func (d *DB) ArchiveSessions(ctx context.Context, archive *store.ArchiveSessions) ([]*store.ArchivedSession, error) {
	filter := bson.M{
		"status":    string(store.SessionStatusClosed),
		"closed_ts": bson.M{"$lt": archive.ClosedBefore.Unix()},
	}
	update := bson.M{"$set": bson.M{
		"status":      string(store.SessionStatusArchived),
		"archived_ts": archive.ArchivedAt.Unix(),
		"messages":    bson.A{},
	}}
	opts := options.FindOneAndUpdate().SetProjection(bson.M{"_id": 1, "user_id": 1, "guild_id": 1})

	list := make([]*store.ArchivedSession, 0)
	for {
		var doc sessionDoc
		err := d.sessions().FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return list, nil
		}
		if err != nil {
			return list, errors.Wrap(err, "failed to archive conversation_sessions")
		}
		list = append(list, &store.ArchivedSession{ID: doc.ID, UserID: doc.UserID, GuildID: doc.GuildID})
	}
}

func (d *DB) DeleteStaleSessions(ctx context.Context, delete *store.DeleteStaleSessions) (int64, error) {
	filter := bson.M{
		"status":     string(store.SessionStatusOpen),
		"created_ts": bson.M{"$lt": delete.CreatedBefore.Unix()},
	}
	result, err := d.sessions().DeleteMany(ctx, filter)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete stale conversation_sessions")
	}
	return result.DeletedCount, nil
}
