package llmbatch

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogObserverThrottlesWaitLines(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLogObserver(slog.New(slog.NewTextHandler(&buf, nil)))

	for i := 0; i < 10; i++ {
		obs.Status("[WAITING] Sleeping 5s")
	}

	assert.Equal(t, 1, strings.Count(buf.String(), "WAITING"))
}

func TestLogObserverPassesRetryAndFailureLines(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLogObserver(slog.New(slog.NewTextHandler(&buf, nil)))

	obs.Status("[RETRY 1] task #0")
	obs.Status("[RETRY 2] task #0")
	obs.Status("[FAILED] task #0")

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "RETRY"))
	assert.Equal(t, 1, strings.Count(out, "FAILED"))
}

func TestLogObserverCompleted(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLogObserver(slog.New(slog.NewTextHandler(&buf, nil)))

	obs.Completed(3, 10)
	assert.Contains(t, buf.String(), "done=3")
	assert.Contains(t, buf.String(), "total=10")
}

func TestLogObserverNilLogger(t *testing.T) {
	obs := NewLogObserver(nil)
	assert.NotNil(t, obs)
	obs.Status("[FAILED] task #0")
	obs.Completed(1, 1)
}

func TestNopObserver(t *testing.T) {
	var o Observer = NopObserver{}
	o.Status("[WAITING] Sleeping 1s")
	o.Completed(1, 2)
}
