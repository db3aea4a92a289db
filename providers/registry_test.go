package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/llmbatch/pkg/provider"
)

func TestCreateBuiltins(t *testing.T) {
	for _, name := range []string{"openai", "gemini", "groq"} {
		t.Run(name, func(t *testing.T) {
			a, err := Create(provider.Config{Name: name, APIKey: "test-key"})
			require.NoError(t, err)
			assert.Equal(t, name, a.Name())
		})
	}
}

func TestCreateOpenAILike(t *testing.T) {
	a, err := Create(provider.Config{
		Name:    "openailike",
		APIKey:  "test-key",
		BaseURL: "https://llm.internal/v1",
	})
	require.NoError(t, err)
	assert.Equal(t, "openailike", a.Name())
}

func TestCreateUnknown(t *testing.T) {
	_, err := Create(provider.Config{Name: "nonesuch"})
	assert.ErrorContains(t, err, "unknown provider")
}

func TestList(t *testing.T) {
	assert.Contains(t, List(), "openai")
	assert.Contains(t, List(), "gemini")
}
