// Package redis provides a Redis-backed result sink. Each collection is one
// hash; fields are correlation keys and values are JSON outcome records.
// HSETNX gives the key-uniqueness guarantee the resume protocol relies on.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
)

// Config holds configuration for the Redis sink.
type Config struct {
	Addr     string `yaml:"addr"`     // Redis address (e.g., "localhost:6379")
	Password string `yaml:"password"` // Redis password
	DB       int    `yaml:"db"`       // Redis database number

	Namespace    string        `yaml:"namespace"`     // Key namespace prefix
	DialTimeout  time.Duration `yaml:"dial_timeout"`  // Connection timeout
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Read timeout
	WriteTimeout time.Duration `yaml:"write_timeout"` // Write timeout
	PoolSize     int           `yaml:"pool_size"`     // Connection pool size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DB:           0,
		Namespace:    "llmbatch",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// Sink stores outcome records in Redis hashes.
type Sink struct {
	client    goredis.UniversalClient
	namespace string
}

// New creates a Redis sink and verifies connectivity.
func New(cfg Config) (*Sink, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Sink{
		client:    client,
		namespace: cfg.Namespace,
	}, nil
}

// NewWithClient wraps an existing Redis client, for callers that manage
// their own connection (and for miniredis-backed tests).
func NewWithClient(client goredis.UniversalClient, namespace string) *Sink {
	return &Sink{
		client:    client,
		namespace: namespace,
	}
}

func (s *Sink) hashKey(collection string) string {
	if s.namespace == "" {
		return collection
	}
	return s.namespace + ":" + collection
}

// Write stores the record under collection/key. An existing field is left
// untouched, so replayed writes are no-ops.
func (s *Sink) Write(ctx context.Context, collection, key string, record map[string]any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if err := s.client.HSetNX(ctx, s.hashKey(collection), key, data).Err(); err != nil {
		return fmt.Errorf("redis hsetnx: %w", err)
	}
	return nil
}

// Keys returns the correlation keys present in a collection.
func (s *Sink) Keys(ctx context.Context, collection string) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.hashKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	return keys, nil
}

// Get retrieves and unmarshals one record. A missing key yields (nil, nil).
func (s *Sink) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	data, err := s.client.HGet(ctx, s.hashKey(collection), key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return record, nil
}

// Ping checks Redis connectivity.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Sink) Close() error {
	return s.client.Close()
}
