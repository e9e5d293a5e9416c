package config

import (
	"cmp"
	"sort"
	"time"
)

// GetTimeout returns the per-attempt fetch timeout as time.Duration
func (d *Defaults) GetTimeout() time.Duration {
	if d.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(d.Timeout) * time.Second
}

// GetBackoff returns the base retry backoff as time.Duration
func (d *Defaults) GetBackoff() time.Duration {
	if d.RetryBackoff <= 0 {
		return 2 * time.Second
	}
	return time.Duration(d.RetryBackoff * float64(time.Second))
}

func (f *FeedConfig) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

func (f *FeedConfig) GetType() string {
	return cmp.Or(f.Type, f.Key)
}

func (f *FeedConfig) GetName() string {
	return cmp.Or(f.Name, f.Key)
}

// FeedKeys returns the configured feed keys in a stable order
func (c *Config) FeedKeys() []string {
	keys := make([]string, 0, len(c.Feeds))
	for k := range c.Feeds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
