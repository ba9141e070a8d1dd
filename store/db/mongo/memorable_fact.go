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

// factDoc is one entry of a profile's memorable_facts array.
// Older documents carry the text under "fact"; it is read as Text.
type factDoc struct {
	ID              string  `bson:"id"`
	Text            string  `bson:"text,omitempty"`
	LegacyText      string  `bson:"fact,omitempty"`
	Type            string  `bson:"type"`
	Confidence      float64 `bson:"confidence"`
	Category        string  `bson:"category"`
	Source          string  `bson:"source"`
	AddedTs         int64   `bson:"added_ts"`
	LastConfirmedTs int64   `bson:"last_confirmed_ts"`
}

func factsFromDocs(userID, guildID string, docs []factDoc) []*store.MemorableFact {
	list := make([]*store.MemorableFact, 0, len(docs))
	for _, doc := range docs {
		text := doc.Text
		if text == "" {
			text = doc.LegacyText
		}
		list = append(list, &store.MemorableFact{
			ID:            doc.ID,
			UserID:        userID,
			GuildID:       guildID,
			Text:          text,
			Type:          store.FactType(doc.Type),
			Confidence:    doc.Confidence,
			Category:      doc.Category,
			Source:        doc.Source,
			AddedAt:       fromUnix(doc.AddedTs),
			LastConfirmed: fromUnix(doc.LastConfirmedTs),
		})
	}
	return list
}

func (d *DB) AppendMemorableFact(ctx context.Context, create *store.MemorableFact) (*store.MemorableFact, error) {
	now := time.Now()
	if create.AddedAt.IsZero() {
		create.AddedAt = now
	}
	if create.LastConfirmed.IsZero() {
		create.LastConfirmed = create.AddedAt
	}

	doc := factDoc{
		ID:              create.ID,
		Text:            create.Text,
		Type:            string(create.Type),
		Confidence:      create.Confidence,
		Category:        create.Category,
		Source:          create.Source,
		AddedTs:         create.AddedAt.Unix(),
		LastConfirmedTs: create.LastConfirmed.Unix(),
	}
	onInsert := emptyProfileFields(now.Unix())
	delete(onInsert, "memorable_facts")

	update := bson.M{
		"$push":        bson.M{"memorable_facts": doc},
		"$set":         bson.M{"updated_ts": now.Unix()},
		"$setOnInsert": onInsert,
	}
	if _, err := d.profiles().UpdateOne(ctx, scopeFilter(create.UserID, create.GuildID), update, options.Update().SetUpsert(true)); err != nil {
		return nil, errors.Wrap(err, "failed to append memorable_fact")
	}

	create.AddedAt = fromUnix(doc.AddedTs)
	create.LastConfirmed = fromUnix(doc.LastConfirmedTs)
	return create, nil
}

func (d *DB) ListMemorableFacts(ctx context.Context, find *store.FindMemorableFact) ([]*store.MemorableFact, error) {
	var doc profileDoc
	opts := options.FindOne().SetProjection(bson.M{"user_id": 1, "guild_id": 1, "memorable_facts": 1})
	err := d.profiles().FindOne(ctx, scopeFilter(find.UserID, find.GuildID), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []*store.MemorableFact{}, nil
		}
		return nil, errors.Wrap(err, "failed to list memorable_facts")
	}
	return factsFromDocs(find.UserID, find.GuildID, doc.Facts), nil
}

// ReinforceMemorableFact rewrites the matching array element in one pipeline
// update: confidence = min(confidence + boost, ceiling).
func (d *DB) ReinforceMemorableFact(ctx context.Context, reinforce *store.ReinforceMemorableFact) error {
	filter := scopeFilter(reinforce.UserID, reinforce.GuildID)
	filter["memorable_facts.id"] = reinforce.ID

	boosted := bson.D{{Key: "$mergeObjects", Value: bson.A{
		"$$f",
		bson.D{
			{Key: "confidence", Value: bson.D{{Key: "$min", Value: bson.A{
				bson.D{{Key: "$add", Value: bson.A{"$$f.confidence", reinforce.Boost}}},
				reinforce.Ceiling,
			}}}},
			{Key: "last_confirmed_ts", Value: reinforce.ConfirmedAt.Unix()},
		},
	}}}
	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "memorable_facts", Value: mapFacts(matchID(reinforce.ID, boosted, "$$f"))},
		{Key: "updated_ts", Value: time.Now().Unix()},
	}}}}

	result, err := d.profiles().UpdateOne(ctx, filter, pipeline)
	if err != nil {
		return errors.Wrap(err, "failed to reinforce memorable_fact")
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ApplyFactChanges filters out deleted facts and rewrites updated confidences
// in a single document update. Each change only applies while its fact still
// holds the observed state; the pre-image tells which ones did.
func (d *DB) ApplyFactChanges(ctx context.Context, changes *store.FactChanges) (*store.AppliedFactChanges, error) {
	var element any = "$$f"
	for _, u := range changes.Updates {
		updated := bson.D{{Key: "$mergeObjects", Value: bson.A{"$$f", bson.D{
			{Key: "confidence", Value: u.Confidence},
			{Key: "last_confirmed_ts", Value: u.LastConfirmed.Unix()},
		}}}}
		element = bson.D{{Key: "$cond", Value: bson.A{observedFact(u.ID, u.Observed), updated, element}}}
	}

	var kept any = bson.D{{Key: "$ifNull", Value: bson.A{"$memorable_facts", bson.A{}}}}
	if len(changes.Deletes) > 0 {
		doomed := bson.A{}
		for _, del := range changes.Deletes {
			doomed = append(doomed, observedFact(del.ID, del.Observed))
		}
		kept = bson.D{{Key: "$filter", Value: bson.D{
			{Key: "input", Value: kept},
			{Key: "as", Value: "f"},
			{Key: "cond", Value: bson.D{{Key: "$not", Value: bson.A{bson.D{{Key: "$or", Value: doomed}}}}}},
		}}}
	}

	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "memorable_facts", Value: bson.D{{Key: "$map", Value: bson.D{
			{Key: "input", Value: kept},
			{Key: "as", Value: "f"},
			{Key: "in", Value: element},
		}}}},
		{Key: "updated_ts", Value: time.Now().Unix()},
	}}}}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"memorable_facts": 1})
	var before profileDoc
	err := d.profiles().FindOneAndUpdate(ctx, scopeFilter(changes.UserID, changes.GuildID), pipeline, opts).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &store.AppliedFactChanges{}, nil
		}
		return nil, errors.Wrap(err, "failed to apply memorable_fact changes")
	}

	prior := make(map[string]factDoc, len(before.Facts))
	for _, f := range before.Facts {
		prior[f.ID] = f
	}
	applied := &store.AppliedFactChanges{}
	for _, u := range changes.Updates {
		if f, ok := prior[u.ID]; ok && f.holds(u.Observed) {
			applied.Updated++
		}
	}
	for _, del := range changes.Deletes {
		if f, ok := prior[del.ID]; ok && f.holds(del.Observed) {
			applied.Deleted++
		}
	}
	return applied, nil
}

// observedFact evaluates to true for the fact with the given id while it still
// carries the observed confidence and last_confirmed_ts.
func observedFact(id string, observed store.FactSnapshot) bson.D {
	confidence := bson.D{{Key: "$min", Value: bson.A{
		bson.D{{Key: "$max", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$$f.confidence", 0}}}, 0}}},
		1,
	}}}
	return bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$$f.id", bson.D{{Key: "$literal", Value: id}}}}},
		bson.D{{Key: "$eq", Value: bson.A{confidence, observed.Confidence}}},
		bson.D{{Key: "$eq", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$$f.last_confirmed_ts", 0}}},
			observed.LastConfirmed.Unix(),
		}}},
	}}}
}

func (f factDoc) holds(observed store.FactSnapshot) bool {
	return store.ClampConfidence(f.Confidence) == observed.Confidence &&
		f.LastConfirmedTs == observed.LastConfirmed.Unix()
}

func mapFacts(in any) bson.D {
	return bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: "$memorable_facts"},
		{Key: "as", Value: "f"},
		{Key: "in", Value: in},
	}}}
}

// matchID evaluates to then for the fact with the given id and to otherwise for the rest.
func matchID(id string, then, otherwise any) bson.D {
	return bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$$f.id", bson.D{{Key: "$literal", Value: id}}}}},
		then,
		otherwise,
	}}}
}
