package llmbatch

import (
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Observer receives progress notifications from running batches. Methods may
// be called concurrently from many workers and must not block.
type Observer interface {
	// Status receives one human-readable progress line, e.g.
	// "[WAITING] Sleeping 12s" or "[RETRY 2] task #7".
	Status(line string)

	// Completed is called after each task reaches a terminal state.
	Completed(done, total int)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) Status(string)      {}
func (NopObserver) Completed(int, int) {}

// LogObserver forwards progress to a slog.Logger. Wait lines are throttled to
// one per second so a pool of workers blocked on admission does not flood the
// log; retry and failure lines always go through.
type LogObserver struct {
	logger  *slog.Logger
	waiting *rate.Limiter
}

// NewLogObserver creates a LogObserver. A nil logger falls back to
// slog.Default().
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{
		logger:  logger,
		waiting: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (o *LogObserver) Status(line string) {
	if strings.HasPrefix(line, "[WAITING]") && !o.waiting.Allow() {
		return
	}
	o.logger.Info(line)
}

func (o *LogObserver) Completed(done, total int) {
	o.logger.Info("batch progress", "done", done, "total", total)
}
