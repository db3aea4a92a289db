// Package openai provides the OpenAI adapter for chat-completion and
// embedding tasks. Token estimation uses tiktoken, so admission control
// works from real counts rather than length heuristics.
package openai

import (
	"github.com/blueberrycongee/llmbatch/internal/tokenizer"
	"github.com/blueberrycongee/llmbatch/pkg/provider"
	"github.com/blueberrycongee/llmbatch/providers/openailike"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "openai"

	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// MaxBatchTokens is the per-request token ceiling for embedding
	// sub-batches built with provider.SplitTexts.
	MaxBatchTokens = 600_000

	// MaxBatchDocs is the per-request document ceiling for embedding
	// sub-batches.
	MaxBatchDocs = 2048
)

var providerInfo = openailike.Info{
	Name:           ProviderName,
	DefaultBaseURL: DefaultBaseURL,
	Estimate:       tokenizer.CountTokens,
}

// Adapter wraps the OpenAI-like adapter for OpenAI.
type Adapter struct {
	*openailike.Adapter
}

// New creates a new OpenAI adapter with the given options.
func New(opts ...openailike.Option) *Adapter {
	return &Adapter{
		Adapter: openailike.New(providerInfo, opts...),
	}
}

// NewFromConfig creates an adapter from a Config struct.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	return openailike.NewFromConfig(providerInfo, cfg)
}
