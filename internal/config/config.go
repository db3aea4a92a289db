// Package config provides quota and dispatch configuration with hot-reload
// support. It uses fsnotify to watch for file changes and atomic pointer
// swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blueberrycongee/llmbatch/pkg/types"
)

// Config holds per-model quota limits and dispatch tuning.
type Config struct {
	// Limits maps "provider/model" keys to quota sets.
	Limits map[string]types.Limits `yaml:"limits"`

	// Defaults applies to any pair without an explicit entry.
	Defaults types.Limits `yaml:"defaults"`

	Dispatch DispatchConfig `yaml:"dispatch"`
}

// DispatchConfig contains worker pool and retry settings.
type DispatchConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	MaxInFlight    int           `yaml:"max_in_flight"`
	MaxRetries     int           `yaml:"max_retries"`
	JitterBase     time.Duration `yaml:"jitter_base"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Limits: make(map[string]types.Limits),
		Defaults: types.Limits{
			RPM: 60,
			TPM: 90_000,
		},
		Dispatch: DispatchConfig{
			MaxConcurrency: 30,
			MaxInFlight:    10,
			MaxRetries:     5,
			JitterBase:     150 * time.Millisecond,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	for key, limits := range c.Limits {
		if !strings.Contains(key, "/") {
			return fmt.Errorf("limits key %q: want provider/model", key)
		}
		if err := limits.Validate(); err != nil {
			return fmt.Errorf("limits %q: %w", key, err)
		}
	}

	d := c.Dispatch
	if d.MaxConcurrency <= 0 {
		return fmt.Errorf("dispatch.max_concurrency must be positive, got %d", d.MaxConcurrency)
	}
	if d.MaxInFlight <= 0 {
		return fmt.Errorf("dispatch.max_in_flight must be positive, got %d", d.MaxInFlight)
	}
	if d.MaxRetries < 0 {
		return fmt.Errorf("dispatch.max_retries cannot be negative")
	}
	if d.JitterBase < 0 {
		return fmt.Errorf("dispatch.jitter_base cannot be negative")
	}

	return nil
}

// LimitsFor resolves the quota set for a provider+model pair, falling back
// to the defaults when no exact entry exists.
func (c *Config) LimitsFor(provider, model string) types.Limits {
	if limits, ok := c.Limits[provider+"/"+model]; ok {
		return limits
	}
	return c.Defaults
}
