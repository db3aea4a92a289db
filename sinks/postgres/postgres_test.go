package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "llmbatch", cfg.Database)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 5*time.Minute, cfg.ConnLifetime)
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		Host:     "db.internal",
		Port:     5433,
		User:     "batch",
		Password: "secret",
		Database: "outcomes",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=batch password=secret dbname=outcomes sslmode=require",
		cfg.DSN(),
	)
}
