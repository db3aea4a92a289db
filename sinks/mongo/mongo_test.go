package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "mongodb://localhost:27017", cfg.URI)
	assert.Equal(t, "llmbatch", cfg.Database)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}
