package notes

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the MongoDB-backed catalog store.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("notes")}
}

// EnsureIndexes creates necessary indexes for the notes collection
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "subject", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "faculty", Value: 1}},
		},
		{
			Keys: bson.D{
				{Key: "avg_rating", Value: -1},
				{Key: "created_at", Value: -1},
			},
		},
	}

	_, err := s.coll.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Insert creates a new note record
func (s *MongoStore) Insert(ctx context.Context, n *Note) error {
	if n.ID == "" {
		n.ID = primitive.NewObjectID().Hex()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Ratings == nil {
		n.Ratings = []Rating{}
	}

	_, err := s.coll.InsertOne(ctx, n)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// FindByID retrieves a note by its ID
func (s *MongoStore) FindByID(ctx context.Context, id string) (*Note, error) {
	var note Note
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&note)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find note %s: %w", id, err)
	}
	return &note, nil
}

// List retrieves one page of notes matching the query, sorted by average
// rating descending and creation time descending, plus the total match count.
func (s *MongoStore) List(ctx context.Context, q ListQuery) ([]*Note, int64, error) {
	filter := bson.M{}
	if q.Subject != "" {
		filter["subject"] = containsPattern(q.Subject)
	}
	if q.Faculty != "" {
		filter["faculty"] = containsPattern(q.Faculty)
	}
	if q.Query != "" {
		filter["$or"] = bson.A{
			bson.M{"subject": containsPattern(q.Query)},
			bson.M{"faculty": containsPattern(q.Query)},
		}
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count notes: %w", err)
	}

	skip := int64(q.Page-1) * int64(q.Limit)
	opts := options.Find().
		SetSort(bson.D{
			{Key: "avg_rating", Value: -1},
			{Key: "created_at", Value: -1},
		}).
		SetSkip(skip).
		SetLimit(int64(q.Limit))

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list notes: %w", err)
	}
	defer cursor.Close(ctx)

	var items []*Note
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("decode notes: %w", err)
	}
	return items, total, nil
}

// UpsertRating applies the rating and the recomputed average in a single
// aggregation-pipeline update, so the two fields can never be observed out
// of sync and concurrent raters never lose writes.
func (s *MongoStore) UpsertRating(ctx context.Context, id string, r Rating) (*Note, error) {
	// Caller strings go through $literal so they are never evaluated as
	// field paths inside the pipeline.
	raterID := bson.D{{Key: "$literal", Value: r.RaterID}}
	entry := bson.D{
		{Key: "rater_id", Value: raterID},
		{Key: "value", Value: r.Value},
		{Key: "comment", Value: bson.D{{Key: "$literal", Value: r.Comment}}},
	}

	// Replace the rater's entry in place, preserving its position.
	replaced := bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: "$ratings"},
		{Key: "as", Value: "r"},
		{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$$r.rater_id", raterID}}},
			entry,
			"$$r",
		}}}},
	}}}

	appended := bson.D{{Key: "$concatArrays", Value: bson.A{
		bson.D{{Key: "$ifNull", Value: bson.A{"$ratings", bson.A{}}}},
		bson.A{entry},
	}}}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{{Key: "ratings", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$in", Value: bson.A{
				raterID,
				bson.D{{Key: "$ifNull", Value: bson.A{"$ratings.rater_id", bson.A{}}}},
			}}},
			replaced,
			appended,
		}}}}}}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "avg_rating", Value: bson.D{{Key: "$ifNull", Value: bson.A{
			bson.D{{Key: "$avg", Value: "$ratings.value"}},
			0.0,
		}}}}}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var note Note
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&note)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("upsert rating on note %s: %w", id, err)
	}
	return &note, nil
}

// IncrementDownloads atomically bumps the download counter
func (s *MongoStore) IncrementDownloads(ctx context.Context, id string) (*Note, error) {
	update := bson.M{"$inc": bson.M{"downloads": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var note Note
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&note)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment downloads on note %s: %w", id, err)
	}
	return &note, nil
}

// Delete removes a note by ID
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// containsPattern builds a case-insensitive substring match with the caller
// input escaped, so it can never act as a regex of its own.
func containsPattern(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}
