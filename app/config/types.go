package config

// Config is the feeds configuration file
type Config struct {
	Prefix   string                 `yaml:"prefix"`
	Schedule string                 `yaml:"schedule"`
	Defaults Defaults               `yaml:"defaults"`
	Feeds    map[string]*FeedConfig `yaml:"feeds"`
}

// Defaults contains fetch settings shared by all feeds
type Defaults struct {
	Retries      int     `yaml:"retries"`
	Timeout      int     `yaml:"timeout"`       // seconds
	RetryBackoff float64 `yaml:"retry_backoff"` // seconds
	RateLimit    float64 `yaml:"rate_limit"`    // requests per second
}

// FeedConfig describes a single vendor feed
type FeedConfig struct {
	Key         string            `yaml:"-"` // map key in the feeds section
	Name        string            `yaml:"name"`
	URL         string            `yaml:"url"`
	Type        string            `yaml:"type"` // schema name, defaults to Key
	Headers     map[string]string `yaml:"headers"`
	UseFallback bool              `yaml:"use_fallback"`
	Enabled     *bool             `yaml:"enabled"`
}
