package gputime

import (
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/born-ml/gputime/internal/config"
)

// Option configures a GPUTime.
type Option func(*GPUTime)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(g *GPUTime) {
		if log != nil {
			g.log = log
		}
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(g *GPUTime) {
		g.cfg = cfg
	}
}

// WithRetryTimer sets the timer used between readback retries.
// Tests pass a timer that fires immediately.
func WithRetryTimer(t backoff.Timer) Option {
	return func(g *GPUTime) {
		g.retryTimer = t
	}
}
