package types //nolint:revive // package name is intentional

import "time"

// Usage contains token usage statistics for one provider call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Outcome is the normalized result of one task, immutable once constructed.
// Failed and cancelled tasks still produce an Outcome (with Err set) so a
// batch always yields a complete outcome set.
type Outcome struct {
	Key        string         `json:"uuid"`
	TaskID     int            `json:"task_id"`
	State      TaskState      `json:"state"`
	Content    string         `json:"response,omitempty"`
	Embeddings [][]float64    `json:"embeddings,omitempty"`
	Usage      Usage          `json:"usage"`
	Model      string         `json:"model_name"`
	Provider   string         `json:"provider"`
	Attempts   int            `json:"attempts"`
	Elapsed    time.Duration  `json:"-"`
	Meta       map[string]any `json:"-"`
	Err        error          `json:"-"`
}

// Record renders the document written to a result sink. Meta entries are
// flattened in; reserved field names win over Meta on collision.
func (o *Outcome) Record() map[string]any {
	rec := make(map[string]any, len(o.Meta)+8)
	for k, v := range o.Meta {
		rec[k] = v
	}
	rec["uuid"] = o.Key
	rec["model_name"] = o.Model
	rec["provider"] = o.Provider
	rec["prompt_tokens"] = o.Usage.PromptTokens
	rec["completion_tokens"] = o.Usage.CompletionTokens
	rec["total_tokens"] = o.Usage.TotalTokens
	if o.Content != "" {
		rec["response"] = o.Content
	}
	if len(o.Embeddings) > 0 {
		rec["embeddings"] = o.Embeddings
	}
	return rec
}

// Summary aggregates terminal outcome counts for one batch run.
type Summary struct {
	Succeeded int
	Failed    int
	Cancelled int
}

// Add counts one terminal outcome.
func (s *Summary) Add(o *Outcome) {
	switch o.State {
	case StateSucceeded:
		s.Succeeded++
	case StateCancelled:
		s.Cancelled++
	default:
		s.Failed++
	}
}

// Total returns the number of outcomes counted.
func (s *Summary) Total() int {
	return s.Succeeded + s.Failed + s.Cancelled
}
