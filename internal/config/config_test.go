package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gputime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, FrameDelimiter, cfg.FrameDelimiter)
	assert.Equal(t, 5, cfg.RetryBudget)
	assert.Equal(t, 14*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, 1000, cfg.FrameMetricsLimit)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
enabled: false
retry_budget: 2
retry_interval: 5ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 2, cfg.RetryBudget)
	assert.Equal(t, 5*time.Millisecond, cfg.RetryInterval)
	// Untouched keys keep their defaults.
	assert.Equal(t, FrameDelimiter, cfg.FrameDelimiter)
	assert.Equal(t, 1000, cfg.FrameMetricsLimit)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "retry_budget: [1, 2"},
		{"negative budget", "retry_budget: -1"},
		{"zero window", "frame_metrics_limit: 0"},
		{"empty delimiter", `frame_delimiter: ""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
