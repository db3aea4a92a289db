package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/llmbatch/pkg/types"
)

func TestRegistrySharesTrackers(t *testing.T) {
	r := NewRegistry(func(string, string) types.Limits {
		return types.Limits{RPM: 10, TPM: 1000}
	}, time.Minute)

	a := r.Tracker("openai", "gpt-4o-mini")
	b := r.Tracker("openai", "gpt-4o-mini")
	c := r.Tracker("openai", "gpt-4o")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestRegistrySetLookupReResolves(t *testing.T) {
	r := NewRegistry(func(string, string) types.Limits {
		return types.Limits{RPM: 10, TPM: 1000}
	}, time.Minute)

	tr := r.Tracker("openai", "gpt-4o-mini")
	require.Equal(t, 10, tr.Limits().RPM)

	r.SetLookup(func(provider, model string) types.Limits {
		if provider == "openai" && model == "gpt-4o-mini" {
			return types.Limits{RPM: 99, TPM: 5000, RPD: 100}
		}
		return types.Limits{RPM: 1, TPM: 1}
	})

	// The existing tracker picked up the new quota without being replaced.
	assert.Same(t, tr, r.Tracker("openai", "gpt-4o-mini"))
	assert.Equal(t, types.Limits{RPM: 99, TPM: 5000, RPD: 100}, tr.Limits())
}
