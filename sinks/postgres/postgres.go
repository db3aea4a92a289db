// Package postgres provides a PostgreSQL-backed result sink. Records land
// in a single table keyed by (collection, key); ON CONFLICT DO NOTHING makes
// replayed writes idempotent.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Config contains PostgreSQL connection settings.
type Config struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:         "localhost",
		Port:         5432,
		Database:     "llmbatch",
		SSLMode:      "disable",
		MaxOpenConns: 25,
		MaxIdleConns: 5,
		ConnLifetime: 5 * time.Minute,
	}
}

// DSN renders the connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Sink stores outcome records in PostgreSQL.
type Sink struct {
	db *sql.DB
}

// New opens a connection pool and verifies connectivity.
func New(cfg *Config) (*Sink, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Sink{db: db}, nil
}

// NewWithDB wraps an existing connection pool.
func NewWithDB(db *sql.DB) *Sink {
	return &Sink{db: db}
}

// EnsureSchema creates the outcomes table if it does not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS llmbatch_outcomes (
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			record     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, key)
		)`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Write inserts the record; an existing (collection, key) row is left
// untouched.
func (s *Sink) Write(ctx context.Context, collection, key string, record map[string]any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	const query = `
		INSERT INTO llmbatch_outcomes (collection, key, record)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, key) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, collection, key, data); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Keys returns the correlation keys present in a collection.
func (s *Sink) Keys(ctx context.Context, collection string) ([]string, error) {
	const query = `SELECT key FROM llmbatch_outcomes WHERE collection = $1`

	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// Ping checks database connectivity.
func (s *Sink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Sink) Close() error {
	return s.db.Close()
}
