package llmbatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/blueberrycongee/llmbatch/internal/config"
	"github.com/blueberrycongee/llmbatch/internal/ratelimit"
	"github.com/blueberrycongee/llmbatch/pkg/sink"
	"github.com/blueberrycongee/llmbatch/pkg/types"
)

// Batch describes one submission: the tasks to run, the model they run
// against, and the sink collection their outcomes land in.
type Batch struct {
	// Collection names the sink collection outcome records are written to.
	Collection string

	// Model applies to every task without an explicit model of its own.
	Model string

	Tasks []*types.Task

	// Resume skips tasks whose key already exists in the collection, so an
	// interrupted run can be re-submitted without repeating finished work.
	Resume bool
}

// Dispatcher fans batches of tasks out over a bounded worker pool, holding
// each task at the rate-limit gate until its model has request and token
// headroom. One tracker per (provider, model) pair is shared by every worker
// and every concurrently running batch.
//
// Dispatcher is safe for concurrent use by multiple goroutines.
type Dispatcher struct {
	cfg      *DispatcherConfig
	registry *ratelimit.Registry
	manager  *config.Manager
	sem      *semaphore.Weighted
	client   *http.Client
	logger   *slog.Logger
	defaults types.Limits

	watchCancel context.CancelFunc
}

// New creates a Dispatcher with the given options. An adapter is required;
// everything else has defaults.
//
// Example:
//
//	d, err := llmbatch.New(
//	    llmbatch.WithAdapter(openai.New(openai.WithAPIKey(os.Getenv("OPENAI_API_KEY")))),
//	    llmbatch.WithSink(resultSink),
//	    llmbatch.WithLimits("openai", "gpt-4o-mini", llmbatch.Limits{RPM: 500, TPM: 200_000}),
//	)
func New(opts ...Option) (*Dispatcher, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if cfg.Sink == nil {
		cfg.Sink = sink.NewMemory()
	}

	var manager *config.Manager
	if cfg.LimitsFile != "" {
		m, err := config.NewManager(cfg.LimitsFile, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("limits file: %w", err)
		}
		manager = m

		// The file's dispatch section forms the base; explicit options win,
		// so they are reapplied on top.
		applyDispatchSection(cfg, m.Get().Dispatch)
		for _, opt := range opts {
			opt(cfg)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		cfg:      cfg,
		manager:  manager,
		sem:      semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		logger:   cfg.Logger,
		defaults: config.DefaultConfig().Defaults,
	}
	d.registry = ratelimit.NewRegistry(d.lookupLimits, cfg.WindowSize)

	if manager != nil {
		// Re-resolve limits for live trackers on every reload.
		manager.OnChange(func(*config.Config) {
			d.registry.SetLookup(d.lookupLimits)
		})

		if cfg.WatchLimits {
			ctx, cancel := context.WithCancel(context.Background())
			d.watchCancel = cancel
			if err := manager.Watch(ctx); err != nil {
				cancel()
				return nil, fmt.Errorf("watch limits file: %w", err)
			}
		}
	}

	d.client = cfg.HTTPClient
	if d.client == nil {
		d.client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: cfg.MaxInFlight,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: cfg.HTTPTimeout,
		}
	}

	return d, nil
}

// SubmitBatch starts a batch run and returns a channel carrying one outcome
// per dispatched task. The channel closes once every task has reached a
// terminal state; cancelled tasks still yield outcomes, so a batch always
// accounts for all of its work.
func (d *Dispatcher) SubmitBatch(ctx context.Context, batch *Batch) (<-chan *types.Outcome, error) {
	if batch == nil {
		return nil, fmt.Errorf("batch is nil")
	}
	if batch.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if len(batch.Tasks) == 0 {
		return nil, fmt.Errorf("batch has no tasks")
	}

	for i, task := range batch.Tasks {
		task.ID = i
		if task.Key == "" {
			task.Key = uuid.NewString()
		}
		if task.Model == "" {
			task.Model = batch.Model
		}
		if task.Model == "" {
			return nil, fmt.Errorf("task #%d: no model set", i)
		}
		if err := task.Validate(); err != nil {
			return nil, err
		}
	}

	pending := batch.Tasks
	if batch.Resume {
		var err error
		pending, err = d.filterDone(ctx, batch)
		if err != nil {
			return nil, err
		}
	}

	outcomes := make(chan *types.Outcome, len(pending))
	if len(pending) == 0 {
		close(outcomes)
		return outcomes, nil
	}

	workers := d.cfg.MaxConcurrency
	if workers > len(pending) {
		workers = len(pending)
	}
	total := len(pending)

	d.logger.Info("batch started",
		"collection", batch.Collection,
		"provider", d.cfg.Adapter.Name(),
		"tasks", total,
		"workers", workers,
	)
	start := time.Now()

	var (
		wg      sync.WaitGroup
		done    atomic.Int64
		mu      sync.Mutex
		summary types.Summary
	)

	taskCh := make(chan *types.Task)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for task := range taskCh {
				outcome := d.runTask(ctx, batch.Collection, task)

				mu.Lock()
				summary.Add(outcome)
				mu.Unlock()

				d.cfg.Observer.Completed(int(done.Add(1)), total)
				outcomes <- outcome
			}
		}()
	}

	// Feed every task even after cancellation: runTask returns a cancelled
	// outcome immediately, keeping the one-outcome-per-task contract.
	go func() {
		for _, task := range pending {
			taskCh <- task
		}
		close(taskCh)
	}()

	go func() {
		wg.Wait()
		close(outcomes)
		d.logger.Info("batch finished",
			"collection", batch.Collection,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"cancelled", summary.Cancelled,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	}()

	return outcomes, nil
}

// Close stops the limits watcher and releases idle connections. Running
// batches are not interrupted; cancel their contexts for that.
func (d *Dispatcher) Close() error {
	if d.watchCancel != nil {
		d.watchCancel()
	}
	if d.manager != nil {
		_ = d.manager.Close()
	}
	d.client.CloseIdleConnections()
	d.logger.Info("dispatcher closed")
	return nil
}

// filterDone drops tasks whose key already has a record in the collection.
func (d *Dispatcher) filterDone(ctx context.Context, batch *Batch) ([]*types.Task, error) {
	keys, err := d.cfg.Sink.Keys(ctx, batch.Collection)
	if err != nil {
		return nil, fmt.Errorf("resume: list keys: %w", err)
	}

	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}

	pending := make([]*types.Task, 0, len(batch.Tasks))
	for _, task := range batch.Tasks {
		if _, ok := seen[task.Key]; ok {
			continue
		}
		pending = append(pending, task)
	}

	if skipped := len(batch.Tasks) - len(pending); skipped > 0 {
		d.logger.Info("resuming batch",
			"collection", batch.Collection,
			"skipped", skipped,
			"remaining", len(pending),
		)
	}
	return pending, nil
}

// lookupLimits resolves quota limits for a provider+model pair: explicit
// options first, then the limits file, then built-in defaults.
func (d *Dispatcher) lookupLimits(provider, model string) types.Limits {
	if limits, ok := d.cfg.Limits[provider+"/"+model]; ok {
		return limits
	}
	if d.manager != nil {
		return d.manager.Get().LimitsFor(provider, model)
	}
	return d.defaults
}

func applyDispatchSection(cfg *DispatcherConfig, dc config.DispatchConfig) {
	cfg.MaxConcurrency = dc.MaxConcurrency
	cfg.MaxInFlight = dc.MaxInFlight
	cfg.MaxRetries = dc.MaxRetries
	cfg.JitterBase = dc.JitterBase
}
