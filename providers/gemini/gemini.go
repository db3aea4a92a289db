// Package gemini provides the Google Gemini adapter. It transforms tasks
// between the dispatcher's message format and Gemini's generateContent and
// batchEmbedContents APIs.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/llmbatch/internal/tokenizer"
	"github.com/blueberrycongee/llmbatch/pkg/errors"
	"github.com/blueberrycongee/llmbatch/pkg/provider"
	"github.com/blueberrycongee/llmbatch/pkg/types"
)

const (
	ProviderName      = "gemini"
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"

	// MaxBatchTokens is the per-request token ceiling for embedding
	// sub-batches built with provider.SplitTexts.
	MaxBatchTokens = 2000

	// MaxBatchDocs is the per-request document ceiling for embedding
	// sub-batches.
	MaxBatchDocs = 100
)

// Adapter implements the Gemini provider adapter.
type Adapter struct {
	apiKey      string
	tokenSource provider.TokenSource
	baseURL     string
	apiVersion  string
	headers     map[string]string
}

// New creates a new Gemini adapter with the given options.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		baseURL:    DefaultBaseURL,
		apiVersion: DefaultAPIVersion,
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewFromConfig creates an adapter from a Config struct.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	opts := []Option{
		WithAPIKey(cfg.APIKey),
		WithBaseURL(cfg.BaseURL),
	}
	if cfg.TokenSource != nil {
		opts = append(opts, WithTokenSource(cfg.TokenSource))
	}
	a := New(opts...)
	for k, v := range cfg.Headers {
		a.headers[k] = v
	}
	return a, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string { return ProviderName }

// EstimateTokens returns the chars/4 estimate for a task. Gemini publishes
// no local tokenizer; the heuristic is advisory only.
func (a *Adapter) EstimateTokens(task *types.Task) int {
	if task.IsEmbedding() {
		return tokenizer.EstimateInputs(tokenizer.Quarter, task.Input)
	}
	return tokenizer.EstimatePrompt(tokenizer.Quarter, task.Messages)
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

type candidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type batchEmbedRequest struct {
	Requests []embedRequest `json:"requests"`
}

type embedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type batchEmbedResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

// BuildRequest creates an HTTP request against generateContent for chat
// tasks or batchEmbedContents for embedding tasks.
func (a *Adapter) BuildRequest(ctx context.Context, task *types.Task) (*http.Request, error) {
	var (
		body   []byte
		action string
		err    error
	)

	if task.IsEmbedding() {
		body, err = json.Marshal(a.transformEmbedding(task))
		action = "batchEmbedContents"
	} else {
		body, err = json.Marshal(a.transformChat(task))
		action = "generateContent"
	}
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// Get token from TokenSource or fallback to apiKey
	token, err := provider.GetToken(a.tokenSource, a.apiKey)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	base, err := url.Parse(strings.TrimSuffix(a.baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base_url: %w", err)
	}
	base.Path = base.Path + "/" + a.apiVersion + "/models/" + url.PathEscape(task.Model) + ":" + action
	q := base.Query()
	q.Set("key", token)
	base.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (a *Adapter) transformChat(task *types.Task) *geminiRequest {
	req := &geminiRequest{GenerationConfig: &generationConfig{}}
	if gen := task.Gen; gen != nil {
		if gen.MaxTokens > 0 {
			req.GenerationConfig.MaxOutputTokens = gen.MaxTokens
		}
		req.GenerationConfig.Temperature = gen.Temperature
		req.GenerationConfig.TopP = gen.TopP
		if len(gen.Stop) > 0 {
			req.GenerationConfig.StopSequences = gen.Stop
		}
	}

	for _, msg := range task.Messages {
		if msg.Role == "system" {
			req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: msg.Content}}}
			continue
		}
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	return req
}

func (a *Adapter) transformEmbedding(task *types.Task) *batchEmbedRequest {
	req := &batchEmbedRequest{Requests: make([]embedRequest, 0, len(task.Input))}
	for _, text := range task.Input {
		req.Requests = append(req.Requests, embedRequest{
			Model:   "models/" + task.Model,
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		})
	}
	return req
}

// ParseResponse normalizes a Gemini success body into an Outcome.
func (a *Adapter) ParseResponse(task *types.Task, body []byte) (*types.Outcome, error) {
	if task.IsEmbedding() {
		return a.parseEmbedding(task, body)
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("response contains no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	outcome := &types.Outcome{
		Content:  text.String(),
		Model:    task.Model,
		Provider: ProviderName,
	}
	if resp.UsageMetadata != nil {
		outcome.Usage = types.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return outcome, nil
}

func (a *Adapter) parseEmbedding(task *types.Task, body []byte) (*types.Outcome, error) {
	var resp batchEmbedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Embeddings) != len(task.Input) {
		return nil, fmt.Errorf("response contains %d embeddings for %d inputs", len(resp.Embeddings), len(task.Input))
	}

	embeddings := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		embeddings[i] = e.Values
	}

	// The embedding API reports no usage; record the advisory estimate so
	// the tracker's token window stays populated.
	est := a.EstimateTokens(task)
	return &types.Outcome{
		Embeddings: embeddings,
		Usage:      types.Usage{PromptTokens: est, TotalTokens: est},
		Model:      task.Model,
		Provider:   ProviderName,
	}, nil
}

// MapError converts a Gemini error response to a standardized error.
func (a *Adapter) MapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := "unknown error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return errors.FromHTTPStatus(ProviderName, "", statusCode, message)
}
