package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/cortexmem/engine/types"
)

// episodicDoc is the BSON document shape stored in the episodic
// collection, one document per event, matching types.EpisodicEvent
// field-for-field so round-tripping never needs a translation layer.
type episodicDoc struct {
	ID             string         `bson:"_id"`
	UserID         string         `bson:"user_id"`
	ConversationID string         `bson:"conversation_id"`
	EventType      string         `bson:"event_type"`
	Content        string         `bson:"content"`
	OccurredAt     time.Time      `bson:"occurred_at"`
	DecayFactor    float64        `bson:"decay_factor"`
	Embedding      []float32      `bson:"embedding,omitempty"`
	Metadata       map[string]any `bson:"metadata,omitempty"`
	Consolidated   bool           `bson:"consolidated"`
}

func toEpisodicDoc(e types.EpisodicEvent) episodicDoc {
	return episodicDoc{
		ID: e.ID, UserID: e.UserID, ConversationID: e.ConversationID, EventType: e.EventType,
		Content: e.Content, OccurredAt: e.OccurredAt, DecayFactor: e.DecayFactor,
		Embedding: e.Embedding, Metadata: e.Metadata, Consolidated: e.Consolidated,
	}
}

func fromEpisodicDoc(d episodicDoc) types.EpisodicEvent {
	return types.EpisodicEvent{
		ID: d.ID, UserID: d.UserID, ConversationID: d.ConversationID, EventType: d.EventType,
		Content: d.Content, OccurredAt: d.OccurredAt, DecayFactor: d.DecayFactor,
		Embedding: d.Embedding, Metadata: d.Metadata, Consolidated: d.Consolidated,
	}
}

// EpisodicRepo implements memory.EpisodicRepo over a MongoDB collection
// of time-ordered event documents.
type EpisodicRepo struct {
	coll *mongo.Collection
}

func (r *EpisodicRepo) Put(ctx context.Context, event types.EpisodicEvent) error {
	doc := toEpisodicDoc(event)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return types.NewError(types.ErrUnavailable, "put event").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *EpisodicRepo) ByUser(ctx context.Context, userID string, limit int) ([]types.EpisodicEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read events").WithCause(err).WithRetryable(true)
	}
	defer cur.Close(ctx)

	var docs []episodicDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, types.NewError(types.ErrUnavailable, "decode events").WithCause(err).WithRetryable(true)
	}
	out := make([]types.EpisodicEvent, len(docs))
	for i, d := range docs {
		out[i] = fromEpisodicDoc(d)
	}
	return out, nil
}

// SearchByEmbedding has no native vector index in this driver (a real
// deployment would add Atlas Search or a companion vector store); it
// returns ErrCapabilityMissing so the orchestrator's resilient wrapper
// treats this as a legitimate partial read rather than a transient
// failure, per memory/resilient.go's SearchByEmbedding handling.
func (r *EpisodicRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int, threshold float64) ([]types.EpisodicEvent, error) {
	return nil, types.NewError(types.ErrCapabilityMissing, "mongo episodic driver has no vector index")
}

func (r *EpisodicRepo) ByTimeRange(ctx context.Context, userID, conversationID string, start, end time.Time) ([]types.EpisodicEvent, error) {
	filter := bson.M{
		"user_id":         userID,
		"conversation_id": conversationID,
		"occurred_at":     bson.M{"$gte": start, "$lte": end},
	}
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}}))
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read events by time range").WithCause(err).WithRetryable(true)
	}
	defer cur.Close(ctx)

	var docs []episodicDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, types.NewError(types.ErrUnavailable, "decode events").WithCause(err).WithRetryable(true)
	}
	out := make([]types.EpisodicEvent, len(docs))
	for i, d := range docs {
		out[i] = fromEpisodicDoc(d)
	}
	return out, nil
}

func (r *EpisodicRepo) ByType(ctx context.Context, userID, eventType string, k int) ([]types.EpisodicEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}})
	if k > 0 {
		opts.SetLimit(int64(k))
	}
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID, "event_type": eventType}, opts)
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read events by type").WithCause(err).WithRetryable(true)
	}
	defer cur.Close(ctx)

	var docs []episodicDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, types.NewError(types.ErrUnavailable, "decode events").WithCause(err).WithRetryable(true)
	}
	out := make([]types.EpisodicEvent, len(docs))
	for i, d := range docs {
		out[i] = fromEpisodicDoc(d)
	}
	return out, nil
}

// Search does a case-insensitive substring match via a regex filter;
// this driver has no text index, so it scans the content field.
func (r *EpisodicRepo) Search(ctx context.Context, userID, query string, k int) ([]types.EpisodicEvent, error) {
	filter := bson.M{
		"user_id": userID,
		"content": bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"},
	}
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}})
	if k > 0 {
		opts.SetLimit(int64(k))
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "search events").WithCause(err).WithRetryable(true)
	}
	defer cur.Close(ctx)

	var docs []episodicDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, types.NewError(types.ErrUnavailable, "decode events").WithCause(err).WithRetryable(true)
	}
	out := make([]types.EpisodicEvent, len(docs))
	for i, d := range docs {
		out[i] = fromEpisodicDoc(d)
	}
	return out, nil
}

func (r *EpisodicRepo) Get(ctx context.Context, id string) (*types.EpisodicEvent, error) {
	var doc episodicDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, types.NewError(types.ErrNotFound, "event not found")
		}
		return nil, types.NewError(types.ErrUnavailable, "read event").WithCause(err).WithRetryable(true)
	}
	e := fromEpisodicDoc(doc)
	return &e, nil
}

func (r *EpisodicRepo) RecurringCandidates(ctx context.Context, userID string, minOccurrences int, window time.Duration) (map[string][]types.EpisodicEvent, error) {
	cutoff := time.Now().Add(-window)
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID, "consolidated": false, "occurred_at": bson.M{"$gte": cutoff}})
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read recurring candidates").WithCause(err).WithRetryable(true)
	}
	defer cur.Close(ctx)

	var docs []episodicDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, types.NewError(types.ErrUnavailable, "decode events").WithCause(err).WithRetryable(true)
	}

	groups := map[string][]types.EpisodicEvent{}
	for _, d := range docs {
		e := fromEpisodicDoc(d)
		groups[e.EventType] = append(groups[e.EventType], e)
	}
	for k, v := range groups {
		if len(v) < minOccurrences {
			delete(groups, k)
		}
	}
	return groups, nil
}

func (r *EpisodicRepo) MarkConsolidated(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.coll.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$set": bson.M{"consolidated": true}})
	if err != nil {
		return types.NewError(types.ErrUnavailable, "mark consolidated").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *EpisodicRepo) UpdateDecay(ctx context.Context, id string, decayFactor float64) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"decay_factor": decayFactor}})
	if err != nil {
		return types.NewError(types.ErrUnavailable, "update decay").WithCause(err).WithRetryable(true)
	}
	if res.MatchedCount == 0 {
		return types.NewError(types.ErrNotFound, "event not found")
	}
	return nil
}

func (r *EpisodicRepo) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return types.NewError(types.ErrUnavailable, "delete user events").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *EpisodicRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return types.NewError(types.ErrUnavailable, "delete event").WithCause(err).WithRetryable(true)
	}
	return nil
}
