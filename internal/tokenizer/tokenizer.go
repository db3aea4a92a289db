// Package tokenizer provides advisory token estimation for admission
// control. Counts feed the rate-limit tracker only and are never used for
// billing-accurate accounting.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/blueberrycongee/llmbatch/pkg/types"
)

// Estimator returns an advisory token count for a text.
type Estimator func(text string) int

// Quarter is the chars/4 heuristic used by providers without a public
// tokenizer.
func Quarter(text string) int {
	return len(text) / 4
}

// Half is the chars/2 heuristic for providers whose tokenizers run
// noticeably denser than cl100k.
func Half(text string) int {
	return len(text) / 2
}

var (
	encodingCache sync.Map
	defaultOnce   sync.Once
	defaultEnc    *tiktoken.Tiktoken
)

// CountTokens returns the tiktoken count for text under the given model's
// encoding, falling back to Quarter when no encoding is available.
func CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc := getEncoding(model)
	if enc == nil {
		return Quarter(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// ForModel returns an Estimator bound to the model's tiktoken encoding.
func ForModel(model string) Estimator {
	return func(text string) int {
		return CountTokens(model, text)
	}
}

const (
	// perMessageOverhead covers role and formatting tokens per chat message.
	perMessageOverhead = 2

	// replyPrimerOverhead covers the assistant reply primer common chat
	// formats append.
	replyPrimerOverhead = 3
)

// EstimatePrompt estimates prompt tokens for a chat payload: each message's
// role and content through count, plus fixed per-message and reply-primer
// overheads.
func EstimatePrompt(count Estimator, msgs []types.ChatMessage) int {
	total := 0
	for _, msg := range msgs {
		total += count(msg.Role)
		total += count(msg.Content)
		total += perMessageOverhead
	}
	total += replyPrimerOverhead
	return total
}

// EstimateInputs estimates tokens for an embedding payload by summing count
// over every input document.
func EstimateInputs(count Estimator, inputs []string) int {
	total := 0
	for _, text := range inputs {
		total += count(text)
	}
	return total
}

func getEncoding(model string) *tiktoken.Tiktoken {
	base := normalizeModelName(model)
	if cached, ok := encodingCache.Load(base); ok {
		if enc, ok := cached.(*tiktoken.Tiktoken); ok {
			return enc
		}
		return getDefaultEncoding()
	}

	enc, err := tiktoken.EncodingForModel(base)
	if err != nil {
		enc = getDefaultEncoding()
	}
	if enc != nil {
		encodingCache.Store(base, enc)
	}
	return enc
}

func getDefaultEncoding() *tiktoken.Tiktoken {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			defaultEnc = enc
		}
	})
	return defaultEnc
}

func normalizeModelName(model string) string {
	if model == "" {
		return model
	}
	if idx := strings.LastIndex(model, "/"); idx >= 0 && idx+1 < len(model) {
		return model[idx+1:]
	}
	return model
}
