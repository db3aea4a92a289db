package llmbatch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/llmbatch/pkg/errors"
	"github.com/blueberrycongee/llmbatch/pkg/provider"
	"github.com/blueberrycongee/llmbatch/pkg/sink"
	"github.com/blueberrycongee/llmbatch/pkg/types"
	"github.com/blueberrycongee/llmbatch/providers/openailike"
)

const chatBody = `{
	"model": "test-model",
	"choices": [{"message": {"role": "assistant", "content": "ok"}}],
	"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
}`

func testAdapter(baseURL string) provider.Adapter {
	return openailike.New(
		openailike.Info{Name: "testprov", DefaultBaseURL: baseURL},
		openailike.WithAPIKey("test-key"),
	)
}

func chatTasks(n int) []*types.Task {
	tasks := make([]*types.Task, n)
	for i := range tasks {
		tasks[i] = &types.Task{
			Key:      fmt.Sprintf("task-%d", i),
			Messages: []types.ChatMessage{{Role: "user", Content: "hello"}},
		}
	}
	return tasks
}

// collect drains the outcome channel, failing the test if the batch hangs.
func collect(t *testing.T, ch <-chan *types.Outcome) []*types.Outcome {
	t.Helper()
	var out []*types.Outcome
	deadline := time.After(30 * time.Second)
	for {
		select {
		case o, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, o)
		case <-deadline:
			t.Fatal("timed out waiting for outcomes")
		}
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingObserver) Status(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recordingObserver) Completed(int, int) {}

func (r *recordingObserver) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type errorSink struct{}

func (errorSink) Write(context.Context, string, string, map[string]any) error {
	return fmt.Errorf("disk full")
}

func (errorSink) Keys(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestSubmitBatchSuccess(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, chatBody)
	}))
	defer srv.Close()

	mem := sink.NewMemory()
	d, err := New(
		WithAdapter(testAdapter(srv.URL)),
		WithSink(mem),
		WithJitterBase(time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	ch, err := d.SubmitBatch(context.Background(), &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      chatTasks(5),
	})
	require.NoError(t, err)

	outcomes := collect(t, ch)
	require.Len(t, outcomes, 5)
	for _, o := range outcomes {
		assert.Equal(t, types.StateSucceeded, o.State)
		assert.Equal(t, "ok", o.Content)
		assert.Equal(t, 1, o.Attempts)
		assert.NoError(t, o.Err)
	}
	assert.EqualValues(t, 5, hits.Load())
	assert.Equal(t, 5, mem.Len("outcomes"))

	rec, ok := mem.Get("outcomes", "task-0")
	require.True(t, ok)
	assert.Equal(t, "ok", rec["response"])
	assert.Equal(t, "testprov", rec["provider"])
}

func TestRetryBudgetExhausted(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "slow down"}}`)
	}))
	defer srv.Close()

	d, err := New(
		WithAdapter(testAdapter(srv.URL)),
		WithMaxRetries(2),
		WithBackoffBase(time.Millisecond),
		WithJitterBase(time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	ch, err := d.SubmitBatch(context.Background(), &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      chatTasks(1),
	})
	require.NoError(t, err)

	outcomes := collect(t, ch)
	require.Len(t, outcomes, 1)

	o := outcomes[0]
	assert.Equal(t, types.StateFailed, o.State)
	// maxRetries+1 calls, never more.
	assert.Equal(t, 3, o.Attempts)
	assert.EqualValues(t, 3, hits.Load())
	assert.True(t, errors.IsRateLimited(o.Err))
}

func TestPermanentErrorFailsWithoutRetry(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"message": "bad prompt"}}`)
	}))
	defer srv.Close()

	d, err := New(
		WithAdapter(testAdapter(srv.URL)),
		WithJitterBase(time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	ch, err := d.SubmitBatch(context.Background(), &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      chatTasks(1),
	})
	require.NoError(t, err)

	outcomes := collect(t, ch)
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.StateFailed, outcomes[0].State)
	assert.Equal(t, 1, outcomes[0].Attempts)
	assert.EqualValues(t, 1, hits.Load())
	assert.False(t, errors.IsRetryable(outcomes[0].Err))
}

func TestTransientErrorRecovers(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, chatBody)
	}))
	defer srv.Close()

	d, err := New(
		WithAdapter(testAdapter(srv.URL)),
		WithBackoffBase(time.Millisecond),
		WithJitterBase(time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	ch, err := d.SubmitBatch(context.Background(), &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      chatTasks(1),
	})
	require.NoError(t, err)

	outcomes := collect(t, ch)
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.StateSucceeded, outcomes[0].State)
	assert.Equal(t, 3, outcomes[0].Attempts)
}

func TestProgressLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	d, err := New(
		WithAdapter(testAdapter(srv.URL)),
		WithObserver(obs),
		WithMaxRetries(1),
		WithBackoffBase(time.Millisecond),
		WithJitterBase(time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	ch, err := d.SubmitBatch(context.Background(), &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      chatTasks(1),
	})
	require.NoError(t, err)
	collect(t, ch)

	lines := obs.snapshot()
	assert.Contains(t, lines, "[RETRY 1] task #0")
	assert.Contains(t, lines, "[FAILED] task #0")
}

func TestCancellationDuringBackoff(t *testing.T) {
	firstHit := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		select {
		case firstHit <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d, err := New(
		WithAdapter(testAdapter(srv.URL)),
		WithBackoffBase(time.Minute),
		WithJitterBase(time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := d.SubmitBatch(ctx, &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      chatTasks(1),
	})
	require.NoError(t, err)

	<-firstHit
	cancel()

	// The worker is parked in a minute-long backoff; cancellation must cut
	// through it rather than wait it out.
	start := time.Now()
	outcomes := collect(t, ch)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, outcomes, 1)
	assert.Equal(t, types.StateCancelled, outcomes[0].State)
	assert.True(t, errors.IsCancelled(outcomes[0].Err))
}

func TestResumeSkipsCompletedTasks(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, chatBody)
	}))
	defer srv.Close()

	mem := sink.NewMemory()
	require.NoError(t, mem.Write(context.Background(), "outcomes", "task-0", map[string]any{"response": "done"}))

	d, err := New(
		WithAdapter(testAdapter(srv.URL)),
		WithSink(mem),
		WithJitterBase(time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	ch, err := d.SubmitBatch(context.Background(), &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      chatTasks(2),
		Resume:     true,
	})
	require.NoError(t, err)

	outcomes := collect(t, ch)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "task-1", outcomes[0].Key)
	assert.EqualValues(t, 1, hits.Load())

	// The pre-existing record is untouched.
	rec, ok := mem.Get("outcomes", "task-0")
	require.True(t, ok)
	assert.Equal(t, "done", rec["response"])
}

func TestResumeAllDone(t *testing.T) {
	mem := sink.NewMemory()
	require.NoError(t, mem.Write(context.Background(), "outcomes", "task-0", map[string]any{}))

	d, err := New(
		WithAdapter(testAdapter("http://unused.invalid")),
		WithSink(mem),
	)
	require.NoError(t, err)
	defer d.Close()

	ch, err := d.SubmitBatch(context.Background(), &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      chatTasks(1),
		Resume:     true,
	})
	require.NoError(t, err)
	assert.Empty(t, collect(t, ch))
}

func TestSinkWriteFailureFailsTask(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, chatBody)
	}))
	defer srv.Close()

	d, err := New(
		WithAdapter(testAdapter(srv.URL)),
		WithSink(errorSink{}),
		WithJitterBase(time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	ch, err := d.SubmitBatch(context.Background(), &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      chatTasks(1),
	})
	require.NoError(t, err)

	outcomes := collect(t, ch)
	require.Len(t, outcomes, 1)
	assert.Equal(t, types.StateFailed, outcomes[0].State)
	assert.ErrorContains(t, outcomes[0].Err, "sink write")
	// The call itself succeeded; no replay against the provider.
	assert.EqualValues(t, 1, hits.Load())
}

func TestInFlightCap(t *testing.T) {
	var current, maxSeen atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cur := current.Add(1)
		for {
			m := maxSeen.Load()
			if cur <= m || maxSeen.CompareAndSwap(m, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		fmt.Fprint(w, chatBody)
	}))
	defer srv.Close()

	d, err := New(
		WithAdapter(testAdapter(srv.URL)),
		WithMaxConcurrency(8),
		WithMaxInFlight(2),
		WithJitterBase(time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	ch, err := d.SubmitBatch(context.Background(), &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      chatTasks(8),
	})
	require.NoError(t, err)

	outcomes := collect(t, ch)
	assert.Len(t, outcomes, 8)
	assert.LessOrEqual(t, maxSeen.Load(), int64(2))
}

func TestWindowLimitDefersAdmission(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, chatBody)
	}))
	defer srv.Close()

	d, err := New(
		WithAdapter(testAdapter(srv.URL)),
		WithLimits("testprov", "test-model", types.Limits{RPM: 2, TPM: 1_000_000}),
		WithWindowSize(200*time.Millisecond),
		WithJitterBase(time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	start := time.Now()
	ch, err := d.SubmitBatch(context.Background(), &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      chatTasks(4),
	})
	require.NoError(t, err)

	outcomes := collect(t, ch)
	require.Len(t, outcomes, 4)
	for _, o := range outcomes {
		assert.Equal(t, types.StateSucceeded, o.State)
	}
	// Only two requests fit per window, so the batch spans at least one
	// window rollover.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestSubmitBatchAssignsKeysAndModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, chatBody)
	}))
	defer srv.Close()

	d, err := New(
		WithAdapter(testAdapter(srv.URL)),
		WithJitterBase(time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	tasks := []*types.Task{
		{Messages: []types.ChatMessage{{Role: "user", Content: "a"}}},
		{Messages: []types.ChatMessage{{Role: "user", Content: "b"}}, Model: "other-model"},
	}

	ch, err := d.SubmitBatch(context.Background(), &Batch{
		Collection: "outcomes",
		Model:      "test-model",
		Tasks:      tasks,
	})
	require.NoError(t, err)
	collect(t, ch)

	assert.NotEmpty(t, tasks[0].Key)
	assert.NotEmpty(t, tasks[1].Key)
	assert.NotEqual(t, tasks[0].Key, tasks[1].Key)
	assert.Equal(t, "test-model", tasks[0].Model)
	assert.Equal(t, "other-model", tasks[1].Model)
}

func TestSubmitBatchValidation(t *testing.T) {
	d, err := New(WithAdapter(testAdapter("http://unused.invalid")))
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()

	t.Run("nil batch", func(t *testing.T) {
		_, err := d.SubmitBatch(ctx, nil)
		assert.ErrorContains(t, err, "batch is nil")
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := d.SubmitBatch(ctx, &Batch{Model: "m", Tasks: chatTasks(1)})
		assert.ErrorContains(t, err, "collection")
	})

	t.Run("no tasks", func(t *testing.T) {
		_, err := d.SubmitBatch(ctx, &Batch{Collection: "c", Model: "m"})
		assert.ErrorContains(t, err, "no tasks")
	})

	t.Run("no model anywhere", func(t *testing.T) {
		_, err := d.SubmitBatch(ctx, &Batch{Collection: "c", Tasks: chatTasks(1)})
		assert.ErrorContains(t, err, "no model")
	})

	t.Run("invalid task payload", func(t *testing.T) {
		_, err := d.SubmitBatch(ctx, &Batch{Collection: "c", Model: "m", Tasks: []*types.Task{{Key: "k"}}})
		assert.ErrorContains(t, err, "empty payload")
	})
}

func TestJitterRange(t *testing.T) {
	d, err := New(
		WithAdapter(testAdapter("http://unused.invalid")),
		WithJitterBase(150*time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	for i := 0; i < 100; i++ {
		j := d.jitter()
		assert.GreaterOrEqual(t, j, 50*time.Millisecond)
		assert.Less(t, j, 250*time.Millisecond)
	}
}
