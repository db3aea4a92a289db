package llmbatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/blueberrycongee/llmbatch/internal/metrics"
	"github.com/blueberrycongee/llmbatch/internal/ratelimit"
	"github.com/blueberrycongee/llmbatch/pkg/errors"
	"github.com/blueberrycongee/llmbatch/pkg/types"
)

// runTask drives one task through admission, dispatch, and retry until it
// reaches a terminal state. It always returns an outcome.
func (d *Dispatcher) runTask(ctx context.Context, collection string, task *types.Task) *types.Outcome {
	providerName := d.cfg.Adapter.Name()
	tracker := d.registry.Tracker(providerName, task.Model)
	estimate := d.cfg.Adapter.EstimateTokens(task)

	start := time.Now()
	attempts := 0

	for {
		if !d.awaitAdmission(ctx, tracker, task.Model, estimate) {
			return d.cancelledOutcome(task, attempts, start)
		}

		attempts++
		outcome, err := d.dispatchOnce(ctx, task)
		if err == nil {
			tracker.RecordUsage(outcome.Usage.PromptTokens, outcome.Usage.CompletionTokens)
			metrics.PromptTokens.WithLabelValues(providerName, task.Model).Add(float64(outcome.Usage.PromptTokens))
			metrics.CompletionTokens.WithLabelValues(providerName, task.Model).Add(float64(outcome.Usage.CompletionTokens))

			outcome.Key = task.Key
			outcome.TaskID = task.ID
			outcome.State = types.StateSucceeded
			outcome.Attempts = attempts
			outcome.Elapsed = time.Since(start)
			outcome.Meta = task.Meta

			if werr := d.cfg.Sink.Write(ctx, collection, task.Key, outcome.Record()); werr != nil {
				metrics.SinkWrites.WithLabelValues(collection, "error").Inc()
				d.logger.Error("sink write failed",
					"task", task.ID,
					"key", task.Key,
					"error", werr,
				)
				d.cfg.Observer.Status(fmt.Sprintf("[FAILED] task #%d", task.ID))
				return d.failedOutcome(task, attempts, start, fmt.Errorf("sink write: %w", werr))
			}
			metrics.SinkWrites.WithLabelValues(collection, "ok").Inc()
			metrics.TasksTotal.WithLabelValues(providerName, task.Model, string(types.StateSucceeded)).Inc()
			return outcome
		}

		if ctx.Err() != nil || errors.IsCancelled(err) || stderrors.Is(err, context.Canceled) {
			return d.cancelledOutcome(task, attempts, start)
		}

		if !errors.IsRetryable(err) {
			d.cfg.Observer.Status(fmt.Sprintf("[FAILED] task #%d", task.ID))
			d.logger.Warn("task failed",
				"task", task.ID,
				"attempts", attempts,
				"error", err,
			)
			return d.failedOutcome(task, attempts, start, err)
		}

		// Retry budget spent: the final failing attempt ends the task with no
		// trailing backoff sleep.
		if attempts > d.cfg.MaxRetries {
			d.cfg.Observer.Status(fmt.Sprintf("[FAILED] task #%d", task.ID))
			d.logger.Warn("task failed, retries exhausted",
				"task", task.ID,
				"attempts", attempts,
				"error", err,
			)
			return d.failedOutcome(task, attempts, start, err)
		}

		retryState := types.StateErrorRetry
		if errors.IsRateLimited(err) || errors.IsQuotaExhausted(err) {
			retryState = types.StateRateLimitedRetry
		}
		metrics.TaskRetries.WithLabelValues(providerName, task.Model, errors.Class(err)).Inc()
		d.cfg.Observer.Status(fmt.Sprintf("[RETRY %d] task #%d", attempts, task.ID))
		d.logger.Debug("retrying task",
			"task", task.ID,
			"attempt", attempts,
			"state", string(retryState),
		)

		backoff := d.cfg.BackoffBase*time.Duration(1<<attempts) + d.jitter()
		if !d.sleep(ctx, backoff) {
			return d.cancelledOutcome(task, attempts, start)
		}
	}
}

// awaitAdmission blocks until the tracker grants a slot, sleeping through
// daily-quota exhaustion and window congestion. A granted slot is already
// reserved in the window when this returns true; false means cancellation.
func (d *Dispatcher) awaitAdmission(ctx context.Context, tracker *ratelimit.Tracker, model string, estimate int) bool {
	providerName := d.cfg.Adapter.Name()
	waited := time.Now()

	for {
		if ctx.Err() != nil {
			return false
		}

		if tracker.IsDailyQuotaExhausted() {
			d.cfg.Observer.Status(fmt.Sprintf("[WAITING] Sleeping %ds", ceilSeconds(d.cfg.DailyCooldown)))
			if !d.sleep(ctx, d.cfg.DailyCooldown) {
				return false
			}
			continue
		}

		wait := tracker.EstimateAdmission(estimate)
		if wait <= 0 {
			break
		}

		d.cfg.Observer.Status(fmt.Sprintf("[WAITING] Sleeping %ds", ceilSeconds(wait)))
		if !d.sleep(ctx, wait+d.jitter()) {
			return false
		}
	}

	metrics.AdmissionWait.WithLabelValues(providerName, model).Observe(time.Since(waited).Seconds())

	// Small stagger so workers admitted in the same instant do not hit the
	// provider as one burst.
	return d.sleep(ctx, d.jitter())
}

// dispatchOnce performs one provider call. The in-flight semaphore is held
// only across the HTTP round trip, never across admission waits or backoff,
// so a full pool of sleeping workers cannot starve live calls.
func (d *Dispatcher) dispatchOnce(ctx context.Context, task *types.Task) (*types.Outcome, error) {
	providerName := d.cfg.Adapter.Name()

	req, err := d.cfg.Adapter.BuildRequest(ctx, task)
	if err != nil {
		// A request that cannot be built will never improve on retry.
		return nil, errors.NewPermanentError(providerName, task.Model, 0, fmt.Sprintf("build request: %v", err))
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	metrics.InFlightCalls.WithLabelValues(providerName).Inc()
	callStart := time.Now()
	resp, err := d.client.Do(req)
	d.sem.Release(1)
	metrics.InFlightCalls.WithLabelValues(providerName).Dec()
	metrics.CallLatency.WithLabelValues(providerName, task.Model).Observe(time.Since(callStart).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewTransientError(providerName, task.Model, 0, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransientError(providerName, task.Model, resp.StatusCode, fmt.Sprintf("read body: %v", err))
	}

	if resp.StatusCode >= 400 {
		return nil, d.cfg.Adapter.MapError(resp.StatusCode, body)
	}

	outcome, err := d.cfg.Adapter.ParseResponse(task, body)
	if err != nil {
		return nil, errors.NewTransientError(providerName, task.Model, resp.StatusCode, fmt.Sprintf("parse response: %v", err))
	}
	return outcome, nil
}

func (d *Dispatcher) failedOutcome(task *types.Task, attempts int, start time.Time, err error) *types.Outcome {
	providerName := d.cfg.Adapter.Name()
	metrics.TasksTotal.WithLabelValues(providerName, task.Model, string(types.StateFailed)).Inc()
	return &types.Outcome{
		Key:      task.Key,
		TaskID:   task.ID,
		State:    types.StateFailed,
		Model:    task.Model,
		Provider: providerName,
		Attempts: attempts,
		Elapsed:  time.Since(start),
		Meta:     task.Meta,
		Err:      err,
	}
}

func (d *Dispatcher) cancelledOutcome(task *types.Task, attempts int, start time.Time) *types.Outcome {
	providerName := d.cfg.Adapter.Name()
	metrics.TasksTotal.WithLabelValues(providerName, task.Model, string(types.StateCancelled)).Inc()
	return &types.Outcome{
		Key:      task.Key,
		TaskID:   task.ID,
		State:    types.StateCancelled,
		Model:    task.Model,
		Provider: providerName,
		Attempts: attempts,
		Elapsed:  time.Since(start),
		Meta:     task.Meta,
		Err:      errors.NewCancelledError(providerName, task.Model),
	}
}

// sleep waits for dur, returning false if ctx is cancelled first.
func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// jitter returns a uniform duration in [base/3, base*5/3), e.g. 50-250ms for
// the default 150ms base.
func (d *Dispatcher) jitter() time.Duration {
	base := d.cfg.JitterBase
	if base <= 0 {
		return 0
	}
	return base/3 + time.Duration(rand.Int63n(int64(base*4/3)))
}

func ceilSeconds(dur time.Duration) int {
	return int(math.Ceil(dur.Seconds()))
}
