// Package mongo provides a MongoDB-backed result sink. Each dispatch
// collection maps to a MongoDB collection; records carry the correlation key
// in a dedicated field backed by a unique index, so replayed writes surface
// as duplicate-key errors and are swallowed.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// keyField stores the correlation key inside each document.
const keyField = "_key"

// Config holds configuration for the MongoDB sink.
type Config struct {
	URI      string        `yaml:"uri"`      // Connection string (e.g., "mongodb://localhost:27017")
	Database string        `yaml:"database"` // Database name
	Timeout  time.Duration `yaml:"timeout"`  // Connect/ping timeout
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URI:      "mongodb://localhost:27017",
		Database: "llmbatch",
		Timeout:  10 * time.Second,
	}
}

// Sink stores outcome records in MongoDB collections.
type Sink struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	return &Sink{
		client: client,
		db:     client.Database(cfg.Database),
	}, nil
}

// NewWithClient wraps an existing Mongo client, for callers that manage
// their own connection.
func NewWithClient(client *mongo.Client, database string) *Sink {
	return &Sink{
		client: client,
		db:     client.Database(database),
	}
}

// EnsureIndexes creates the unique correlation-key index on a collection.
// Call it once per collection before the first dispatch; without the index,
// duplicate suppression degrades to resume-time filtering only.
func (s *Sink) EnsureIndexes(ctx context.Context, collection string) error {
	_, err := s.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: keyField, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create index on %s: %w", collection, err)
	}
	return nil
}

// Write inserts the record with its correlation key. Duplicate-key errors
// are swallowed; the first write wins.
func (s *Sink) Write(ctx context.Context, collection, key string, record map[string]any) error {
	doc := bson.M{keyField: key}
	for k, v := range record {
		doc[k] = v
	}

	_, err := s.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}

// Keys returns the distinct correlation keys present in a collection.
func (s *Sink) Keys(ctx context.Context, collection string) ([]string, error) {
	values, err := s.db.Collection(collection).Distinct(ctx, keyField, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("mongo distinct: %w", err)
	}

	keys := make([]string, 0, len(values))
	for _, v := range values {
		if key, ok := v.(string); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Ping checks MongoDB connectivity.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
