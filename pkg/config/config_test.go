package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://api.nuget.org/v3/index.json", cfg.RegistryURL)
	assert.Equal(t, 5, cfg.MaxConcurrentRequests)
	assert.Equal(t, 30, cfg.HTTPTimeoutSeconds)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2, cfg.Retry.DelaySeconds)
	assert.Equal(t, 2.0, cfg.Retry.BackoffFactor)
	assert.Equal(t, 30, cfg.Retry.MaxDelaySeconds)
	assert.True(t, cfg.Retry.UseJitter)
	assert.Equal(t, "text", cfg.Output.Format)

	assert.NoError(t, cfg.Validate(), "defaults must be valid")
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	err := os.WriteFile(path, []byte(`
maxConcurrentRequests: 10
retry:
  maxAttempts: 5
  useJitter: false
output:
  format: json
`), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxConcurrentRequests)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.Retry.UseJitter)
	assert.Equal(t, "json", cfg.Output.Format)
	// Untouched values keep their defaults.
	assert.Equal(t, 30, cfg.HTTPTimeoutSeconds)
	assert.Equal(t, 2.0, cfg.Retry.BackoffFactor)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("maxConcurrentRequests: [not an int"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestFindAndLoadConfig_SearchesUpward(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "src", "Api")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("maxConcurrentRequests: 7\n"), 0644))

	cfg, err := FindAndLoadConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxConcurrentRequests)
}

func TestValidate_RangeViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"concurrency too low", func(c *Config) { c.MaxConcurrentRequests = 0 }},
		{"concurrency too high", func(c *Config) { c.MaxConcurrentRequests = 21 }},
		{"timeout too low", func(c *Config) { c.HTTPTimeoutSeconds = 4 }},
		{"timeout too high", func(c *Config) { c.HTTPTimeoutSeconds = 301 }},
		{"retries negative", func(c *Config) { c.Retry.MaxAttempts = -1 }},
		{"retries too high", func(c *Config) { c.Retry.MaxAttempts = 11 }},
		{"delay too low", func(c *Config) { c.Retry.DelaySeconds = 0 }},
		{"delay too high", func(c *Config) { c.Retry.DelaySeconds = 61 }},
		{"factor too low", func(c *Config) { c.Retry.BackoffFactor = 0.9 }},
		{"factor too high", func(c *Config) { c.Retry.BackoffFactor = 5.1 }},
		{"max delay too low", func(c *Config) { c.Retry.MaxDelaySeconds = 0 }},
		{"max delay too high", func(c *Config) { c.Retry.MaxDelaySeconds = 301 }},
		{"relative registry url", func(c *Config) { c.RegistryURL = "/v3/index.json" }},
		{"bad scheme", func(c *Config) { c.RegistryURL = "ftp://nuget.example/index.json" }},
		{"unknown format", func(c *Config) { c.Output.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentRequests = 0
	cfg.Retry.BackoffFactor = 9.0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxConcurrentRequests")
	assert.Contains(t, err.Error(), "backoffFactor")
}

func TestValidate_BoundaryValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentRequests = 20
	cfg.HTTPTimeoutSeconds = 300
	cfg.Retry.MaxAttempts = 0
	cfg.Retry.DelaySeconds = 60
	cfg.Retry.BackoffFactor = 5.0
	cfg.Retry.MaxDelaySeconds = 300
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxConcurrentRequests = 1
	cfg.HTTPTimeoutSeconds = 5
	cfg.Retry.DelaySeconds = 1
	cfg.Retry.BackoffFactor = 1.0
	cfg.Retry.MaxDelaySeconds = 1
	assert.NoError(t, cfg.Validate())
}

func TestRetryPolicy(t *testing.T) {
	cfg := DefaultConfig()
	policy := cfg.RetryPolicy()

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 2*time.Second, policy.BaseDelay)
	assert.Equal(t, 2.0, policy.Factor)
	assert.Equal(t, 30*time.Second, policy.MaxDelay)
	assert.True(t, policy.Jitter)

	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
}
