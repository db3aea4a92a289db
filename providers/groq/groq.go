// Package groq provides the Groq adapter for chat-completion tasks. Groq
// exposes an OpenAI-compatible API; its open-source models tokenize denser
// than cl100k, hence the chars/2 estimate.
// API Reference: https://console.groq.com/docs/api-reference
package groq

import (
	"github.com/blueberrycongee/llmbatch/internal/tokenizer"
	"github.com/blueberrycongee/llmbatch/pkg/provider"
	"github.com/blueberrycongee/llmbatch/providers/openailike"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "groq"

	// DefaultBaseURL is the default Groq API endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
)

var providerInfo = openailike.Info{
	Name:           ProviderName,
	DefaultBaseURL: DefaultBaseURL,
	Estimate: func(_, text string) int {
		return tokenizer.Half(text)
	},
}

// Adapter wraps the OpenAI-like adapter for Groq.
type Adapter struct {
	*openailike.Adapter
}

// New creates a new Groq adapter with the given options.
func New(opts ...openailike.Option) *Adapter {
	return &Adapter{
		Adapter: openailike.New(providerInfo, opts...),
	}
}

// NewFromConfig creates an adapter from a Config struct.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	return openailike.NewFromConfig(providerInfo, cfg)
}
