package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTexts(t *testing.T) {
	byLen := func(s string) int { return len(s) }

	t.Run("respects token ceiling", func(t *testing.T) {
		texts := []string{"aaaa", "bbbb", "cccc", "dddd"}
		batches := SplitTexts(texts, byLen, 8, 100)

		require.Len(t, batches, 2)
		assert.Equal(t, []string{"aaaa", "bbbb"}, batches[0])
		assert.Equal(t, []string{"cccc", "dddd"}, batches[1])
	})

	t.Run("respects document ceiling", func(t *testing.T) {
		texts := []string{"a", "b", "c", "d", "e"}
		batches := SplitTexts(texts, byLen, 1000, 2)

		require.Len(t, batches, 3)
		assert.Equal(t, []string{"e"}, batches[2])
	})

	t.Run("oversize text ships alone", func(t *testing.T) {
		texts := []string{"aa", "this text is far too long", "bb"}
		batches := SplitTexts(texts, byLen, 10, 100)

		require.Len(t, batches, 3)
		assert.Equal(t, []string{"this text is far too long"}, batches[1])
	})

	t.Run("preserves order across batches", func(t *testing.T) {
		texts := []string{"1", "2", "3", "4", "5", "6"}
		batches := SplitTexts(texts, byLen, 1000, 4)

		var flat []string
		for _, b := range batches {
			flat = append(flat, b...)
		}
		assert.Equal(t, texts, flat)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, SplitTexts(nil, byLen, 10, 10))
	})
}

func TestGetToken(t *testing.T) {
	t.Run("falls back to static key", func(t *testing.T) {
		tok, err := GetToken(nil, "sk-fallback")
		require.NoError(t, err)
		assert.Equal(t, "sk-fallback", tok)
	})

	t.Run("prefers token source", func(t *testing.T) {
		tok, err := GetToken(NewStaticTokenSource("dynamic"), "sk-fallback")
		require.NoError(t, err)
		assert.Equal(t, "dynamic", tok)
	})
}
