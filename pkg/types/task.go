// Package types defines core data structures for batch dispatch:
// tasks, outcomes, token usage, and per-model quota limits.
package types //nolint:revive // package name is intentional

import "fmt"

// ChatMessage is a single role-tagged message part of a chat payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationConfig carries optional sampling parameters for chat tasks.
type GenerationConfig struct {
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Task is one unit of work in a batch. Exactly one of Messages (chat) or
// Input (embedding) must be set. Key is the caller-supplied correlation key
// used to associate the task with its outcome and to skip already-processed
// work on resume; the dispatcher assigns a UUID when it is empty.
//
// A task is owned exclusively by its worker for the duration of one attempt;
// ownership of the outcome transfers to the sink on success.
type Task struct {
	// ID is the ordinal of the task within its batch, assigned at submit.
	ID int

	// Key is the correlation key.
	Key string

	// Model overrides the batch-level model when non-empty.
	Model string

	// Messages is the chat payload.
	Messages []ChatMessage

	// Input is the embedding payload.
	Input []string

	// Gen holds optional generation parameters for chat tasks.
	Gen *GenerationConfig

	// Meta is carried verbatim into the sink record.
	Meta map[string]any
}

// IsEmbedding reports whether the task carries an embedding payload.
func (t *Task) IsEmbedding() bool {
	return len(t.Input) > 0
}

// Validate checks that the task carries exactly one payload kind.
func (t *Task) Validate() error {
	hasChat := len(t.Messages) > 0
	hasInput := len(t.Input) > 0
	switch {
	case hasChat && hasInput:
		return fmt.Errorf("task %q: messages and input are mutually exclusive", t.Key)
	case !hasChat && !hasInput:
		return fmt.Errorf("task %q: empty payload", t.Key)
	}
	for i, s := range t.Input {
		if s == "" {
			return fmt.Errorf("task %q: input contains empty string at index %d", t.Key, i)
		}
	}
	return nil
}

// TaskState identifies a position in the per-task state machine.
type TaskState string

// Task states. Succeeded, Failed, and Cancelled are terminal.
const (
	StatePending          TaskState = "pending"
	StateAdmitted         TaskState = "admitted"
	StateInFlight         TaskState = "in_flight"
	StateSucceeded        TaskState = "succeeded"
	StateRateLimitedRetry TaskState = "rate_limited_retry"
	StateErrorRetry       TaskState = "error_retry"
	StateFailed           TaskState = "failed"
	StateCancelled        TaskState = "cancelled"
)

// Terminal reports whether the state ends the task's lifecycle.
func (s TaskState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}
