// Package providers provides a unified registry for all built-in adapter
// implementations. It allows automatic adapter creation from configuration.
package providers

import (
	"fmt"
	"sync"

	"github.com/blueberrycongee/llmbatch/pkg/provider"
	"github.com/blueberrycongee/llmbatch/providers/gemini"
	"github.com/blueberrycongee/llmbatch/providers/groq"
	"github.com/blueberrycongee/llmbatch/providers/openai"
	"github.com/blueberrycongee/llmbatch/providers/openailike"
)

var (
	registry     = make(map[string]provider.Factory)
	registryOnce sync.Once
	registryMu   sync.RWMutex
)

// Register registers an adapter factory with the given provider name.
func Register(name string, factory provider.Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get returns the factory for the given provider name.
func Get(name string) (provider.Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Create creates an adapter instance from configuration, keyed by cfg.Name.
func Create(cfg provider.Config) (provider.Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (available: %v)", cfg.Name, List())
	}

	return factory(cfg)
}

// List returns all registered provider names.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// RegisterBuiltins registers all built-in adapter factories.
// This is called automatically on first use.
func RegisterBuiltins() {
	registryOnce.Do(func() {
		Register("openai", openai.NewFromConfig)
		Register("gemini", gemini.NewFromConfig)
		Register("groq", groq.NewFromConfig)
		Register("openailike", func(cfg provider.Config) (provider.Adapter, error) {
			return openailike.NewFromConfig(openailike.Info{
				Name:           cfg.Name,
				DefaultBaseURL: cfg.BaseURL,
			}, cfg)
		})
	})
}

func init() {
	RegisterBuiltins()
}
