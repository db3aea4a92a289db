package llmbatch

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/blueberrycongee/llmbatch/internal/ratelimit"
	"github.com/blueberrycongee/llmbatch/pkg/provider"
	"github.com/blueberrycongee/llmbatch/pkg/sink"
	"github.com/blueberrycongee/llmbatch/pkg/types"
)

// DispatcherConfig holds all configuration for the Dispatcher.
type DispatcherConfig struct {
	// Adapter is the provider adapter every task is sent through.
	Adapter provider.Adapter

	// Sink receives one record per succeeded task. Defaults to an in-memory
	// sink when unset.
	Sink sink.Sink

	// Limits maps "provider/model" keys to explicit quota sets. Entries here
	// win over the limits file.
	Limits map[string]types.Limits

	// LimitsFile is an optional YAML file carrying quota limits and dispatch
	// tuning. WatchLimits hot-reloads it on change.
	LimitsFile  string
	WatchLimits bool

	// Worker pool
	MaxConcurrency int
	MaxInFlight    int
	MaxRetries     int

	// Timing
	JitterBase    time.Duration
	BackoffBase   time.Duration
	DailyCooldown time.Duration
	WindowSize    time.Duration

	// HTTP
	HTTPTimeout time.Duration
	HTTPClient  *http.Client

	// Logging and progress
	Logger   *slog.Logger
	Observer Observer
}

// Option is a function that configures the Dispatcher.
type Option func(*DispatcherConfig)

// defaultConfig returns sensible defaults.
func defaultConfig() *DispatcherConfig {
	return &DispatcherConfig{
		Limits:         make(map[string]types.Limits),
		MaxConcurrency: 30,
		MaxInFlight:    10,
		MaxRetries:     5,
		JitterBase:     150 * time.Millisecond,
		BackoffBase:    time.Second,
		DailyCooldown:  60 * time.Second,
		WindowSize:     ratelimit.DefaultWindow,
		HTTPTimeout:    90 * time.Second,
		Logger:         slog.Default(),
		Observer:       NopObserver{},
	}
}

func (c *DispatcherConfig) validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("max in-flight must be positive, got %d", c.MaxInFlight)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff base must be positive, got %v", c.BackoffBase)
	}
	if c.JitterBase < 0 {
		return fmt.Errorf("jitter base cannot be negative")
	}
	for key, limits := range c.Limits {
		if err := limits.Validate(); err != nil {
			return fmt.Errorf("limits %q: %w", key, err)
		}
	}
	return nil
}

// WithAdapter sets the provider adapter. Required.
//
// Example:
//
//	llmbatch.WithAdapter(openai.New(
//	    openai.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	))
func WithAdapter(a provider.Adapter) Option {
	return func(c *DispatcherConfig) {
		c.Adapter = a
	}
}

// WithSink sets the result sink outcomes are written to.
//
// Example:
//
//	s, _ := redis.New(redis.Config{Addr: "localhost:6379"})
//	llmbatch.WithSink(s)
func WithSink(s sink.Sink) Option {
	return func(c *DispatcherConfig) {
		c.Sink = s
	}
}

// WithLimits sets an explicit quota set for one provider+model pair.
// Explicit limits win over entries loaded from a limits file.
//
// Example:
//
//	llmbatch.WithLimits("openai", "gpt-4o-mini", llmbatch.Limits{
//	    RPM: 500,
//	    TPM: 200_000,
//	    RPD: 10_000,
//	})
func WithLimits(provider, model string, limits types.Limits) Option {
	return func(c *DispatcherConfig) {
		c.Limits[provider+"/"+model] = limits
	}
}

// WithLimitsFile loads quota limits and dispatch tuning from a YAML file.
// Values set through explicit options win over the file.
func WithLimitsFile(path string) Option {
	return func(c *DispatcherConfig) {
		c.LimitsFile = path
	}
}

// WithLimitsWatch hot-reloads the limits file on change. New limits apply to
// running batches without pausing workers.
func WithLimitsWatch(enabled bool) Option {
	return func(c *DispatcherConfig) {
		c.WatchLimits = enabled
	}
}

// WithMaxConcurrency sets the worker pool size. The pool never exceeds the
// number of tasks in the batch.
func WithMaxConcurrency(n int) Option {
	return func(c *DispatcherConfig) {
		c.MaxConcurrency = n
	}
}

// WithMaxInFlight caps the number of provider calls on the wire at once,
// independently of the worker pool size.
func WithMaxInFlight(n int) Option {
	return func(c *DispatcherConfig) {
		c.MaxInFlight = n
	}
}

// WithMaxRetries sets the retry budget per task. A task makes at most
// n+1 provider calls before it fails.
func WithMaxRetries(n int) Option {
	return func(c *DispatcherConfig) {
		c.MaxRetries = n
	}
}

// WithJitterBase scales the random stagger applied after admission and added
// to every wait, desynchronizing workers released at the same instant.
func WithJitterBase(d time.Duration) Option {
	return func(c *DispatcherConfig) {
		c.JitterBase = d
	}
}

// WithBackoffBase sets the initial retry backoff. Exponential doubling is
// applied per attempt on top of it.
func WithBackoffBase(d time.Duration) Option {
	return func(c *DispatcherConfig) {
		c.BackoffBase = d
	}
}

// WithDailyCooldown sets how long workers sleep between daily-quota rechecks
// once a model's requests-per-day budget is spent.
func WithDailyCooldown(d time.Duration) Option {
	return func(c *DispatcherConfig) {
		c.DailyCooldown = d
	}
}

// WithWindowSize sets the sliding rate-limit window. RPM and TPM budgets are
// enforced over this duration.
func WithWindowSize(d time.Duration) Option {
	return func(c *DispatcherConfig) {
		c.WindowSize = d
	}
}

// WithHTTPTimeout sets the per-call HTTP timeout. Ignored when a custom
// HTTP client is supplied.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *DispatcherConfig) {
		c.HTTPTimeout = d
	}
}

// WithHTTPClient supplies a custom HTTP client for provider calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *DispatcherConfig) {
		c.HTTPClient = client
	}
}

// WithLogger sets the logger for the dispatcher.
func WithLogger(logger *slog.Logger) Option {
	return func(c *DispatcherConfig) {
		c.Logger = logger
	}
}

// WithObserver sets the progress observer notified of waits, retries,
// failures, and completion counts.
//
// Example:
//
//	llmbatch.WithObserver(llmbatch.NewLogObserver(slog.Default()))
func WithObserver(o Observer) Option {
	return func(c *DispatcherConfig) {
		c.Observer = o
	}
}
