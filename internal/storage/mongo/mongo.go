package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/kwscout/internal/storage"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ensure mongoBackend implements storage.Backend
var _ storage.Backend = (*mongoBackend)(nil)

type mongoBackend struct {
	client   *mongo.Client
	keywords *mongo.Collection
}

// document is the stored shape of a keyword. seq breaks ties between records
// created within the same clock tick.
type document struct {
	ID          string     `bson:"_id"`
	OwnerID     string     `bson:"owner_id"`
	Name        string     `bson:"name"`
	AdsTopCount int        `bson:"ads_top_count"`
	AdsTopURLs  []string   `bson:"ads_top_urls"`
	ResultURLs  []string   `bson:"result_urls"`
	FetchStatus string     `bson:"fetch_status"`
	FetchError  string     `bson:"fetch_error"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
	FetchedAt   *time.Time `bson:"fetched_at,omitempty"`
	Seq         int64      `bson:"seq"`
}

// New connects to MongoDB and returns a storage.Backend using the given
// database and collection.
func New(ctx context.Context, uri, database, collection string) (storage.Backend, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	b := &mongoBackend{
		client:   client,
		keywords: client.Database(database).Collection(collection),
	}
	if err := b.createIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return b, nil
}

func (b *mongoBackend) createIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "seq", Value: 1}},
	}
	if _, err := b.keywords.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("failed to create owner index: %w", err)
	}
	return nil
}

func (b *mongoBackend) Create(ctx context.Context, ownerID, name string) (*storage.Keyword, error) {
	now := time.Now().UTC()
	doc := document{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Name:        name,
		AdsTopURLs:  []string{},
		ResultURLs:  []string{},
		FetchStatus: string(storage.StatusPending),
		CreatedAt:   now,
		UpdatedAt:   now,
		Seq:         now.UnixNano(),
	}
	if _, err := b.keywords.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert keyword: %w", err)
	}
	return doc.keyword(), nil
}

func (b *mongoBackend) Update(ctx context.Context, id string, outcome storage.Outcome) error {
	now := time.Now().UTC()
	set := bson.M{
		"ads_top_count": outcome.AdCount(),
		"ads_top_urls":  nonNil(outcome.AdURLs),
		"result_urls":   nonNil(outcome.ResultURLs),
		"fetch_status":  string(outcome.Status),
		"fetch_error":   outcome.Error,
		"updated_at":    now,
	}
	if outcome.Status == storage.StatusFetched {
		set["fetched_at"] = now
	}

	filter := bson.M{"_id": id, "fetch_status": string(storage.StatusPending)}
	res, err := b.keywords.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update keyword: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	if _, err := b.Find(ctx, id); err != nil {
		return err
	}
	return storage.ErrNotPending
}

func (b *mongoBackend) Find(ctx context.Context, id string) (*storage.Keyword, error) {
	var doc document
	err := b.keywords.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find keyword: %w", err)
	}
	return doc.keyword(), nil
}

func (b *mongoBackend) List(ctx context.Context, ownerID string, page, perPage int) ([]*storage.Keyword, int, error) {
	_, perPage, offset := storage.NormalizePage(page, perPage)
	filter := bson.M{"owner_id": ownerID}

	total, err := b.keywords.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count keywords: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(perPage))

	cursor, err := b.keywords.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer cursor.Close(ctx)

	results := []*storage.Keyword{}
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("failed to decode keyword: %w", err)
		}
		results = append(results, doc.keyword())
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate keywords: %w", err)
	}

	return results, int(total), nil
}

func (b *mongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}

func (d document) keyword() *storage.Keyword {
	return &storage.Keyword{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Name:        d.Name,
		AdsTopCount: d.AdsTopCount,
		AdsTopURLs:  nonNil(d.AdsTopURLs),
		ResultURLs:  nonNil(d.ResultURLs),
		FetchStatus: storage.FetchStatus(d.FetchStatus),
		FetchError:  d.FetchError,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		FetchedAt:   d.FetchedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
