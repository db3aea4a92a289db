// Package llmbatch dispatches large batches of LLM prompts against a single
// provider while staying inside its published rate limits. A batch of chat or
// embedding tasks is fanned out over a bounded worker pool; every task is held
// at a sliding-window rate-limit gate until its model has request and token
// headroom, sent through a provider adapter, retried with exponential backoff
// on transient failures, and finally written to a result sink keyed by a
// caller-supplied correlation key so interrupted runs can resume without
// repeating work.
package llmbatch

import (
	"github.com/blueberrycongee/llmbatch/pkg/provider"
	"github.com/blueberrycongee/llmbatch/pkg/sink"
	"github.com/blueberrycongee/llmbatch/pkg/types"
)

// Re-exported core types so typical callers only import this package.
type (
	Task        = types.Task
	ChatMessage = types.ChatMessage
	Outcome     = types.Outcome
	Usage       = types.Usage
	Limits      = types.Limits
	Summary     = types.Summary

	Adapter = provider.Adapter
	Sink    = sink.Sink
)
