package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPrefix   = "isteburada_"
	DefaultRetries  = 5
	DefaultTimeout  = 60 // seconds
	DefaultBackoff  = 2  // seconds
	DefaultSchedule = "@every 1h"
)

// Loader handles loading and validation of the feeds configuration file
type Loader struct {
	path string
}

// NewLoader creates a new configuration loader
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads, defaults and validates the configuration file
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", l.path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", l.path, err)
	}

	l.setDefaults(&config)

	if err := l.validate(&config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", l.path, err)
	}

	slog.Debug("Configuration loaded", "path", l.path, "feeds", len(config.Feeds))

	return &config, nil
}

// setDefaults applies default values to configuration
func (l *Loader) setDefaults(config *Config) {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Defaults.Retries == 0 {
		config.Defaults.Retries = DefaultRetries
	}
	if config.Defaults.Timeout == 0 {
		config.Defaults.Timeout = DefaultTimeout
	}
	if config.Defaults.RetryBackoff == 0 {
		config.Defaults.RetryBackoff = DefaultBackoff
	}
	if config.Feeds == nil {
		config.Feeds = make(map[string]*FeedConfig)
	}
	for key, feed := range config.Feeds {
		if feed == nil {
			feed = &FeedConfig{}
			config.Feeds[key] = feed
		}
		feed.Key = key
	}
}

// validate checks global settings. Per-feed problems (missing URL, unknown
// type) are reported when that feed is processed so other feeds still run.
func (l *Loader) validate(config *Config) error {
	if config.Defaults.Retries < 0 {
		return fmt.Errorf("retries must be non-negative")
	}
	if config.Defaults.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if config.Defaults.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff must be non-negative")
	}
	if config.Defaults.RateLimit < 0 {
		return fmt.Errorf("rate limit must be non-negative")
	}
	return nil
}

// ResolvePath returns path if it exists. Otherwise it looks for the same file
// next to the running executable and one directory above it, which is where
// the file usually sits when the binary is started from a dist/ folder.
func ResolvePath(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("config file %s not found", path)
	}

	exe, err := os.Executable()
	if err == nil {
		dir := filepath.Dir(exe)
		for _, candidate := range []string{
			filepath.Join(filepath.Dir(dir), path),
			filepath.Join(dir, path),
		} {
			if _, err := os.Stat(candidate); err == nil {
				slog.Info("Config file not found, using fallback", "path", path, "found", candidate)
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("config file %s not found: %w", path, errors.Join(os.ErrNotExist, err))
}
