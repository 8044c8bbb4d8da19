// Package config loads and validates the audit tool configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sambabib/nuget-audit/pkg/retry"
)

// ConfigFileName is searched for from the solution directory upward.
const ConfigFileName = ".nuget-audit.yaml"

// ErrInvalid wraps all configuration validation failures so callers can
// report them with a dedicated exit status, distinct from runtime failures.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full configuration surface consumed by the audit run.
type Config struct {
	// RegistryURL is the NuGet v3 service index used for metadata fetches.
	RegistryURL string `yaml:"registryUrl"`

	MaxConcurrentRequests int `yaml:"maxConcurrentRequests"`
	HTTPTimeoutSeconds    int `yaml:"httpTimeoutSeconds"`

	Retry struct {
		MaxAttempts     int     `yaml:"maxAttempts"`
		DelaySeconds    int     `yaml:"delaySeconds"`
		BackoffFactor   float64 `yaml:"backoffFactor"`
		MaxDelaySeconds int     `yaml:"maxDelaySeconds"`
		UseJitter       bool    `yaml:"useJitter"`
	} `yaml:"retry"`

	Output struct {
		Format string `yaml:"format"` // text, json, sarif
		File   string `yaml:"file"`   // stdout if empty
	} `yaml:"output"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	config := &Config{
		RegistryURL:           "https://api.nuget.org/v3/index.json",
		MaxConcurrentRequests: 5,
		HTTPTimeoutSeconds:    30,
	}
	config.Retry.MaxAttempts = 3
	config.Retry.DelaySeconds = 2
	config.Retry.BackoffFactor = 2.0
	config.Retry.MaxDelaySeconds = 30
	config.Retry.UseJitter = true
	config.Output.Format = "text"
	return config
}

// LoadConfig loads the configuration from the specified file path. A missing
// file is not an error; defaults apply.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		configPath = ConfigFileName
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// FindAndLoadConfig searches for a config file from the solution directory up
// to the filesystem root, loading the first one found.
func FindAndLoadConfig(solutionPath string) (*Config, error) {
	currentDir := solutionPath
	for {
		configPath := filepath.Join(currentDir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return LoadConfig(configPath)
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}
	return DefaultConfig(), nil
}

// Validate checks every numeric parameter against its allowed range and the
// registry URL for well-formedness, collecting all violations into one error.
// It must pass before any merge or fetch activity begins.
func (c *Config) Validate() error {
	var problems []string

	if c.MaxConcurrentRequests < 1 || c.MaxConcurrentRequests > 20 {
		problems = append(problems, fmt.Sprintf("maxConcurrentRequests must be in [1, 20], got %d", c.MaxConcurrentRequests))
	}
	if c.HTTPTimeoutSeconds < 5 || c.HTTPTimeoutSeconds > 300 {
		problems = append(problems, fmt.Sprintf("httpTimeoutSeconds must be in [5, 300], got %d", c.HTTPTimeoutSeconds))
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.MaxAttempts > 10 {
		problems = append(problems, fmt.Sprintf("retry.maxAttempts must be in [0, 10], got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.DelaySeconds < 1 || c.Retry.DelaySeconds > 60 {
		problems = append(problems, fmt.Sprintf("retry.delaySeconds must be in [1, 60], got %d", c.Retry.DelaySeconds))
	}
	if c.Retry.BackoffFactor < 1.0 || c.Retry.BackoffFactor > 5.0 {
		problems = append(problems, fmt.Sprintf("retry.backoffFactor must be in [1.0, 5.0], got %g", c.Retry.BackoffFactor))
	}
	if c.Retry.MaxDelaySeconds < 1 || c.Retry.MaxDelaySeconds > 300 {
		problems = append(problems, fmt.Sprintf("retry.maxDelaySeconds must be in [1, 300], got %d", c.Retry.MaxDelaySeconds))
	}

	if u, err := url.Parse(c.RegistryURL); err != nil {
		problems = append(problems, fmt.Sprintf("registryUrl is not a valid URL: %v", err))
	} else if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		problems = append(problems, fmt.Sprintf("registryUrl must be an absolute http(s) URL, got %q", c.RegistryURL))
	}

	switch c.Output.Format {
	case "text", "json", "sarif":
	default:
		problems = append(problems, fmt.Sprintf("output.format must be one of text, json, sarif, got %q", c.Output.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(problems, "\n  - "))
	}
	return nil
}

// HTTPTimeout returns the registry request timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// RetryPolicy converts the retry section into the policy consumed by the
// registry client.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(c.Retry.DelaySeconds) * time.Second,
		Factor:      c.Retry.BackoffFactor,
		MaxDelay:    time.Duration(c.Retry.MaxDelaySeconds) * time.Second,
		Jitter:      c.Retry.UseJitter,
	}
}
