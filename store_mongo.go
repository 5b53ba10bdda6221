package newsagg

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoConnectTimeout = 10 * time.Second

	defaultMongoDatabase   = "news"
	defaultMongoCollection = "articles"
)

// MongoStore is a `DocumentStore` on a MongoDB collection.
type MongoStore struct {
	client   *mongo.Client
	articles *mongo.Collection
}

// NewMongoStore connects to MongoDB at `uri` and prepares the articles collection.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if database == "" {
		database = defaultMongoDatabase
	}
	if collection == "" {
		collection = defaultMongoCollection
	}

	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &MongoStore{
		client:   client,
		articles: client.Database(database).Collection(collection),
	}
	s.createIndexes(ctx)

	return s, nil
}

// create indexes used by lookups and sweeps
func (s *MongoStore) createIndexes(ctx context.Context) {
	_, err := s.articles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "keyword", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "cached_at", Value: 1}}},
		{Keys: bson.D{{Key: "read", Value: 1}}},
		{Keys: bson.D{{Key: "favorite", Value: 1}}},
	})
	if err != nil {
		log.Printf("failed to create indexes on articles collection: %s", err)
	}
}

// Insert appends given rows.
func (s *MongoStore) Insert(ctx context.Context, articles []Article) ([]Article, error) {
	if len(articles) == 0 {
		return []Article{}, nil
	}

	docs := make([]any, 0, len(articles))
	for _, article := range articles {
		docs = append(docs, article)
	}
	if _, err := s.articles.InsertMany(ctx, docs); err != nil {
		return nil, fmt.Errorf("failed to insert articles: %w", err)
	}
	return articles, nil
}

// FindByKeyword returns all rows with given keyword in write order.
func (s *MongoStore) FindByKeyword(ctx context.Context, keyword string) ([]Article, error) {
	return s.find(ctx, bson.M{"keyword": keyword})
}

// DeleteCachedBefore deletes rows cached before `cutoff`.
func (s *MongoStore) DeleteCachedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.articles.DeleteMany(ctx, bson.M{"cached_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete articles cached before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return result.DeletedCount, nil
}

// SetFlag sets `flag` on the row with given id.
func (s *MongoStore) SetFlag(ctx context.Context, id string, flag ArticleFlag) (*Article, error) {
	if !flag.valid() {
		return nil, fmt.Errorf("unknown article flag: '%s'", flag)
	}

	var article Article
	err := s.articles.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{string(flag): true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&article)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update article with id '%s': %w", id, err)
	}
	return &article, nil
}

// FindFlagged returns rows with `flag` set in write order.
func (s *MongoStore) FindFlagged(ctx context.Context, flag ArticleFlag) ([]Article, error) {
	if !flag.valid() {
		return nil, fmt.Errorf("unknown article flag: '%s'", flag)
	}
	return s.find(ctx, bson.M{string(flag): true})
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]Article, error) {
	cursor, err := s.articles.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find articles: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	articles := []Article{}
	if err := cursor.All(ctx, &articles); err != nil {
		return nil, fmt.Errorf("failed to decode articles: %w", err)
	}
	return articles, nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()

	return s.client.Disconnect(ctx)
}
