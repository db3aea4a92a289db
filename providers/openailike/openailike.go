// Package openailike provides a base adapter for OpenAI-compatible
// providers. Most chat and embedding APIs follow OpenAI's wire format with
// minor variations; this package reduces duplication by providing a common
// foundation that concrete providers wrap with their own endpoint and token
// estimation choices.
package openailike

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/llmbatch/internal/tokenizer"
	"github.com/blueberrycongee/llmbatch/pkg/errors"
	"github.com/blueberrycongee/llmbatch/pkg/provider"
	"github.com/blueberrycongee/llmbatch/pkg/types"
)

// EstimatorFunc returns an advisory token count for text under model.
type EstimatorFunc func(model, text string) int

// Info contains provider-specific configuration.
type Info struct {
	// Name is the provider identifier (e.g., "groq", "openai")
	Name string

	// DefaultBaseURL is the default API endpoint
	DefaultBaseURL string

	// APIKeyHeader is the header name for API key authentication
	// Default: "Authorization" with "Bearer " prefix
	APIKeyHeader string

	// APIKeyPrefix is the prefix for the API key value
	// Default: "Bearer "
	APIKeyPrefix string

	// ChatEndpoint is the path for chat completions
	// Default: "/chat/completions"
	ChatEndpoint string

	// EmbeddingEndpoint is the path for embeddings
	// Default: "/embeddings"
	EmbeddingEndpoint string

	// ExtraHeaders are additional headers to include in requests
	ExtraHeaders map[string]string

	// Estimate overrides the token estimator. Default: chars/4.
	Estimate EstimatorFunc
}

// Adapter implements a generic OpenAI-compatible provider adapter covering
// both chat-completion and embedding tasks.
type Adapter struct {
	info        Info
	apiKey      string
	tokenSource provider.TokenSource
	baseURL     string
	headers     map[string]string
	estimate    EstimatorFunc
}

// New creates a new OpenAI-like adapter instance.
func New(info Info, opts ...Option) *Adapter {
	a := &Adapter{
		info:     info,
		baseURL:  info.DefaultBaseURL,
		headers:  make(map[string]string),
		estimate: info.Estimate,
	}
	if a.estimate == nil {
		a.estimate = func(_, text string) int { return tokenizer.Quarter(text) }
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewFromConfig creates an adapter from a Config struct.
func NewFromConfig(info Info, cfg provider.Config) (provider.Adapter, error) {
	a := New(info,
		WithAPIKey(cfg.APIKey),
		WithBaseURL(cfg.BaseURL),
	)
	if cfg.TokenSource != nil {
		a.tokenSource = cfg.TokenSource
	}
	for k, v := range cfg.Headers {
		a.headers[k] = v
	}
	return a, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return a.info.Name
}

// EstimateTokens returns the advisory prompt-token estimate for a task.
func (a *Adapter) EstimateTokens(task *types.Task) int {
	count := func(text string) int { return a.estimate(task.Model, text) }
	if task.IsEmbedding() {
		return tokenizer.EstimateInputs(count, task.Input)
	}
	return tokenizer.EstimatePrompt(count, task.Messages)
}

type chatRequest struct {
	Model       string              `json:"model"`
	Messages    []types.ChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	Stop        []string            `json:"stop,omitempty"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// BuildRequest creates an HTTP request for the provider's chat or embedding
// API, depending on the task's payload kind.
func (a *Adapter) BuildRequest(ctx context.Context, task *types.Task) (*http.Request, error) {
	var (
		body     []byte
		endpoint string
		err      error
	)

	if task.IsEmbedding() {
		body, err = json.Marshal(&embeddingRequest{
			Model: task.Model,
			Input: task.Input,
		})
		endpoint = a.info.EmbeddingEndpoint
		if endpoint == "" {
			endpoint = "/embeddings"
		}
	} else {
		req := &chatRequest{
			Model:    task.Model,
			Messages: task.Messages,
		}
		if gen := task.Gen; gen != nil {
			req.MaxTokens = gen.MaxTokens
			req.Temperature = gen.Temperature
			req.TopP = gen.TopP
			req.Stop = gen.Stop
		}
		body, err = json.Marshal(req)
		endpoint = a.info.ChatEndpoint
		if endpoint == "" {
			endpoint = "/chat/completions"
		}
	}
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(a.baseURL, "/") + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	// Get token from TokenSource or fallback to apiKey
	token, err := provider.GetToken(a.tokenSource, a.apiKey)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	apiKeyHeader := a.info.APIKeyHeader
	if apiKeyHeader == "" {
		apiKeyHeader = "Authorization"
	}
	apiKeyPrefix := a.info.APIKeyPrefix
	if apiKeyPrefix == "" && apiKeyHeader == "Authorization" {
		apiKeyPrefix = "Bearer "
	}
	httpReq.Header.Set(apiKeyHeader, apiKeyPrefix+token)

	for k, v := range a.info.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range a.headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *types.Usage `json:"usage"`
}

type embeddingResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage *types.Usage `json:"usage"`
}

// ParseResponse normalizes a provider success body into an Outcome.
func (a *Adapter) ParseResponse(task *types.Task, body []byte) (*types.Outcome, error) {
	if task.IsEmbedding() {
		return a.parseEmbedding(task, body)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response contains no choices")
	}

	outcome := &types.Outcome{
		Content:  resp.Choices[0].Message.Content,
		Model:    task.Model,
		Provider: a.info.Name,
	}
	if resp.Usage != nil {
		outcome.Usage = *resp.Usage
	}
	return outcome, nil
}

func (a *Adapter) parseEmbedding(task *types.Task, body []byte) (*types.Outcome, error) {
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Data) != len(task.Input) {
		return nil, fmt.Errorf("response contains %d embeddings for %d inputs", len(resp.Data), len(task.Input))
	}

	// The API may return vectors out of order; index restores input order.
	embeddings := make([][]float64, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(embeddings) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}

	outcome := &types.Outcome{
		Embeddings: embeddings,
		Model:      task.Model,
		Provider:   a.info.Name,
	}
	if resp.Usage != nil {
		outcome.Usage = *resp.Usage
	}
	return outcome, nil
}

// MapError converts a provider error response to a standardized error.
func (a *Adapter) MapError(statusCode int, body []byte) error {
	// Try to parse OpenAI-compatible error format
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := "unknown error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return errors.FromHTTPStatus(a.info.Name, "", statusCode, message)
}

// BaseURL returns the configured endpoint, for wiring checks in tests.
func (a *Adapter) BaseURL() string {
	return a.baseURL
}
