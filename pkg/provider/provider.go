// Package provider defines the adapter contract between the dispatcher and
// concrete LLM providers. Each provider implements this interface to handle
// token estimation and request/response transformation; the dispatcher core
// depends only on the interface, never on a concrete provider.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/blueberrycongee/llmbatch/pkg/types"
)

// Adapter is implemented once per provider variant (OpenAI-compatible chat,
// OpenAI-compatible embeddings, Gemini chat/embeddings, Groq chat).
type Adapter interface {
	// Name returns the provider identifier (e.g., "openai", "gemini").
	Name() string

	// EstimateTokens returns the advisory prompt-token estimate for a task,
	// used only for admission control, never for billing-accurate
	// accounting. Implementations use the provider's tokenizer when one is
	// available and fall back to a length heuristic otherwise.
	EstimateTokens(task *types.Task) int

	// BuildRequest transforms a task into a provider-specific HTTP request.
	BuildRequest(ctx context.Context, task *types.Task) (*http.Request, error)

	// ParseResponse normalizes a provider success body into an Outcome,
	// extracting the primary text (or embedding vectors) and token usage.
	ParseResponse(task *types.Task, body []byte) (*types.Outcome, error)

	// MapError converts a provider error response into a BatchError. A 429
	// must map to the rate-limited class so the retry loop can distinguish
	// it from other failures.
	MapError(statusCode int, body []byte) error
}

// Config contains provider-specific configuration.
type Config struct {
	Name        string
	APIKey      string
	TokenSource TokenSource
	BaseURL     string
	Models      []string
	Headers     map[string]string
	Timeout     time.Duration
}

// Factory creates adapter instances from configuration.
type Factory func(cfg Config) (Adapter, error)
