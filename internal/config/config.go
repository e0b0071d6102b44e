// Package config holds the tunables of the GPU timing instrumentation and
// loads them from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/gputime/internal/metrics"
)

// FrameDelimiter is the debug label that marks the last command buffer of a frame.
const FrameDelimiter = "vr-marker,frame_end,type,application"

// Defaults for the result readback retry loop.
const (
	DefaultRetryBudget   = 5
	DefaultRetryInterval = 14 * time.Millisecond // roughly one frame at 72Hz
)

// Config controls the instrumentation.
type Config struct {
	Enabled           bool          `yaml:"enabled"`             // Hooks are no-ops when false.
	FrameDelimiter    string        `yaml:"frame_delimiter"`     // Label text that marks a frame boundary.
	RetryBudget       int           `yaml:"retry_budget"`        // Readback retries before a frame is dropped.
	RetryInterval     time.Duration `yaml:"retry_interval"`      // Sleep between readback retries.
	FrameMetricsLimit int           `yaml:"frame_metrics_limit"` // Frames kept in the rolling window.
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		Enabled:           true,
		FrameDelimiter:    FrameDelimiter,
		RetryBudget:       DefaultRetryBudget,
		RetryInterval:     DefaultRetryInterval,
		FrameMetricsLimit: metrics.DefaultLimit,
	}
}

// Load reads a YAML file on top of Default. Keys absent from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.FrameDelimiter == "" {
		return errors.New("frame_delimiter must not be empty")
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("retry_budget must be >= 0, got %d", c.RetryBudget)
	}
	if c.RetryInterval < 0 {
		return fmt.Errorf("retry_interval must be >= 0, got %s", c.RetryInterval)
	}
	if c.FrameMetricsLimit <= 0 {
		return fmt.Errorf("frame_metrics_limit must be > 0, got %d", c.FrameMetricsLimit)
	}
	return nil
}
