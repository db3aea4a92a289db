// Package ratelimit implements the sliding-window admission tracker that
// keeps batch traffic inside provider RPM/TPM/RPD quotas. One Tracker is
// shared by all workers of a (provider, model) pair and is their sole
// synchronization point.
package ratelimit

import (
	"sync"
	"time"

	"github.com/blueberrycongee/llmbatch/pkg/types"
)

const (
	// DefaultWindow is the trailing window providers meter RPM/TPM against.
	DefaultWindow = time.Minute

	// defaultAvgCompletionTokens seeds the completion-size estimate before
	// any call has completed.
	defaultAvgCompletionTokens = 1000

	// completionSamples bounds the running-average history.
	completionSamples = 50
)

type tokenEvent struct {
	at     time.Time
	tokens int
}

// Tracker admits or delays callers based on current load against one quota
// set. Request timestamps and token events are pruned to the trailing window
// on every access; both sequences stay monotonically non-decreasing in time.
// A single mutex guards all state.
type Tracker struct {
	mu     sync.Mutex
	limits types.Limits
	window time.Duration

	requests    []time.Time
	tokenEvents []tokenEvent

	dailyCount int
	dayStart   time.Time

	completions   []int
	completionIdx int
	completionSum int

	now func() time.Time // for testing
}

// New creates a tracker for the given limits using the default 60s window.
func New(limits types.Limits) *Tracker {
	return NewWithWindow(limits, DefaultWindow)
}

// NewWithWindow creates a tracker with a custom window size. Windows shorter
// than a minute are only meaningful in tests.
func NewWithWindow(limits types.Limits, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	t := &Tracker{
		limits: limits,
		window: window,
		now:    time.Now,
	}
	t.dayStart = startOfDayUTC(t.now())
	return t
}

// EstimateAdmission reports how long the caller must wait before a request
// with the given prompt-token estimate fits the quota. A zero return means
// the request was admitted and its slot reserved: the request timestamp is
// recorded and the daily counter incremented atomically. Callers receiving a
// non-zero wait sleep (interruptibly, plus jitter) and re-poll from scratch;
// admission is a spin/poll protocol, fair in expectation only.
//
// The token check projects estimatedTokens plus the average recent
// completion size on top of the window's recorded usage, compensating for
// completion sizes being unknown before the call returns.
func (t *Tracker) EstimateAdmission(estimatedTokens int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.pruneLocked(now)

	if len(t.requests) >= t.limits.RPM {
		return t.window - now.Sub(t.requests[0])
	}

	projected := t.tokensInWindowLocked() + estimatedTokens + t.averageCompletionLocked()
	if projected > t.limits.TPM && len(t.tokenEvents) > 0 {
		return t.window - now.Sub(t.tokenEvents[0].at)
	}

	t.requests = append(t.requests, now)
	if t.limits.RPD > 0 {
		t.dailyCount++
	}
	return 0
}

// RecordUsage appends observed token usage to the trailing window after a
// successful call and feeds the completion count into the running average.
func (t *Tracker) RecordUsage(promptTokens, completionTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.pruneLocked(now)

	t.tokenEvents = append(t.tokenEvents, tokenEvent{at: now, tokens: promptTokens + completionTokens})

	if len(t.completions) < completionSamples {
		t.completions = append(t.completions, completionTokens)
		t.completionSum += completionTokens
		return
	}
	t.completionSum += completionTokens - t.completions[t.completionIdx]
	t.completions[t.completionIdx] = completionTokens
	t.completionIdx = (t.completionIdx + 1) % completionSamples
}

// AverageCompletionTokens returns the running average of recently observed
// completion sizes, or a fixed default before any observation exists.
func (t *Tracker) AverageCompletionTokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.averageCompletionLocked()
}

// IsDailyQuotaExhausted reports whether the daily request cap is spent. The
// counter is purely local — provider remaining-quota headers are never
// consulted — and resets when the UTC day rolls over.
func (t *Tracker) IsDailyQuotaExhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked(t.now())
	return t.limits.RPD > 0 && t.dailyCount >= t.limits.RPD
}

// WindowUsage returns the request and token counts currently inside the
// trailing window.
func (t *Tracker) WindowUsage() (requests, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(t.now())
	return len(t.requests), t.tokensInWindowLocked()
}

// Limits returns the quota set the tracker enforces.
func (t *Tracker) Limits() types.Limits {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits
}

// SetLimits swaps the quota set. Recorded history is kept; the new limits
// apply from the next admission check.
func (t *Tracker) SetLimits(limits types.Limits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits = limits
}

func (t *Tracker) pruneLocked(now time.Time) {
	t.rolloverLocked(now)

	cutoff := now.Add(-t.window)
	i := 0
	for i < len(t.requests) && !t.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		t.requests = append(t.requests[:0], t.requests[i:]...)
	}

	j := 0
	for j < len(t.tokenEvents) && !t.tokenEvents[j].at.After(cutoff) {
		j++
	}
	if j > 0 {
		t.tokenEvents = append(t.tokenEvents[:0], t.tokenEvents[j:]...)
	}
}

func (t *Tracker) rolloverLocked(now time.Time) {
	if now.Sub(t.dayStart) >= 24*time.Hour {
		t.dailyCount = 0
		t.dayStart = startOfDayUTC(now)
	}
}

func (t *Tracker) tokensInWindowLocked() int {
	total := 0
	for _, ev := range t.tokenEvents {
		total += ev.tokens
	}
	return total
}

func (t *Tracker) averageCompletionLocked() int {
	if len(t.completions) == 0 {
		return defaultAvgCompletionTokens
	}
	return t.completionSum / len(t.completions)
}

func startOfDayUTC(ts time.Time) time.Time {
	year, month, day := ts.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
