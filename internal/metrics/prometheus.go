// Package metrics provides Prometheus metrics for batch dispatch: task
// outcomes, retries, admission waits, token usage, and sink writes. Metrics
// are purely additive; no dispatch behavior depends on them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "llmbatch"
)

// LatencyBuckets defines histogram buckets for provider call latency (in
// seconds). LLM completions regularly run tens of seconds.
var LatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 3.0, 4.0, 5.0,
	7.5, 10.0, 15.0, 20.0, 30.0, 45.0, 60.0, 120.0, 300.0,
}

// WaitBuckets defines histogram buckets for admission waits (in seconds),
// spanning jitter-only grants up to a full sliding window plus daily
// cooldowns.
var WaitBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 20.0, 30.0, 45.0, 60.0, 120.0,
}

// =============================================================================
// Task Metrics
// =============================================================================

var (
	// TasksTotal counts tasks reaching a terminal state.
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of tasks by terminal state",
		},
		[]string{
			"provider", "model", "state",
		},
	)

	// TaskRetries counts retry attempts by error class.
	TaskRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Total number of task retry attempts",
		},
		[]string{
			"provider", "model", "class",
		},
	)

	// InFlightCalls tracks live provider calls.
	InFlightCalls = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_calls",
			Help:      "Number of provider calls currently in flight",
		},
		[]string{"provider"},
	)
)

// =============================================================================
// Rate Limit Metrics
// =============================================================================

var (
	// AdmissionWait tracks time spent blocked on rate-limit admission.
	AdmissionWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_wait_seconds",
			Help:      "Time spent waiting for rate-limit admission",
			Buckets:   WaitBuckets,
		},
		[]string{
			"provider", "model",
		},
	)

	// CallLatency tracks provider call latency.
	CallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_latency_seconds",
			Help:      "Provider API call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{
			"provider", "model",
		},
	)
)

// =============================================================================
// Token Metrics
// =============================================================================

var (
	// PromptTokens counts recorded prompt tokens.
	PromptTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_tokens_total",
			Help:      "Total prompt tokens recorded",
		},
		[]string{
			"provider", "model",
		},
	)

	// CompletionTokens counts recorded completion tokens.
	CompletionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_tokens_total",
			Help:      "Total completion tokens recorded",
		},
		[]string{
			"provider", "model",
		},
	)
)

// =============================================================================
// Sink Metrics
// =============================================================================

var (
	// SinkWrites counts outcome writes by status.
	SinkWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Total outcome writes to the result sink",
		},
		[]string{
			"collection", "status",
		},
	)
)
