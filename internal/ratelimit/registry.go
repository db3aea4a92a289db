package ratelimit

import (
	"sync"
	"time"

	"github.com/blueberrycongee/llmbatch/pkg/types"
)

// LimitsFunc resolves the quota set for a provider+model pair.
type LimitsFunc func(provider, model string) types.Limits

// Registry hands out one shared Tracker per (provider, model) pair.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
	lookup   LimitsFunc
	window   time.Duration
}

// NewRegistry creates a registry resolving limits through lookup.
func NewRegistry(lookup LimitsFunc, window time.Duration) *Registry {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Registry{
		trackers: make(map[string]*Tracker),
		lookup:   lookup,
		window:   window,
	}
}

// Tracker returns or creates the tracker for the given pair.
func (r *Registry) Tracker(provider, model string) *Tracker {
	key := provider + "/" + model

	r.mu.RLock()
	tr, ok := r.trackers[key]
	r.mu.RUnlock()

	if ok {
		return tr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if tr, ok = r.trackers[key]; ok {
		return tr
	}

	tr = NewWithWindow(r.lookup(provider, model), r.window)
	r.trackers[key] = tr
	return tr
}

// SetLookup swaps the limits resolver and re-resolves limits for every
// existing tracker, so a config hot-reload takes effect mid-run.
func (r *Registry) SetLookup(lookup LimitsFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookup = lookup
	for key, tr := range r.trackers {
		provider, model, ok := splitKey(key)
		if !ok {
			continue
		}
		tr.SetLimits(lookup(provider, model))
	}
}

func splitKey(key string) (provider, model string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}
