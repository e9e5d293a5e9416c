package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
prefix: "shop_"
schedule: "@every 30m"

defaults:
  retries: 3
  timeout: 15
  retry_backoff: 0.5
  rate_limit: 2

feeds:
  ebi:
    name: "eBijuteri"
    url: "https://example.com/ebi.xml"
    headers:
      X-Token: "abc"
  tkt:
    url: "https://example.com/tkt.xml"
    use_fallback: true
    enabled: false
`)

	config, err := NewLoader(path).Load()
	if err != nil {
		t.Fatal(err)
	}

	if config.Prefix != "shop_" {
		t.Errorf("Expected prefix 'shop_', got '%s'", config.Prefix)
	}
	if config.Schedule != "@every 30m" {
		t.Errorf("Expected schedule '@every 30m', got '%s'", config.Schedule)
	}
	if config.Defaults.Retries != 3 {
		t.Errorf("Expected retries 3, got %d", config.Defaults.Retries)
	}
	if config.Defaults.GetTimeout() != 15*time.Second {
		t.Errorf("Expected timeout 15s, got %v", config.Defaults.GetTimeout())
	}
	if config.Defaults.GetBackoff() != 500*time.Millisecond {
		t.Errorf("Expected backoff 500ms, got %v", config.Defaults.GetBackoff())
	}
	if config.Defaults.RateLimit != 2 {
		t.Errorf("Expected rate limit 2, got %v", config.Defaults.RateLimit)
	}

	if len(config.Feeds) != 2 {
		t.Fatalf("Expected 2 feeds, got %d", len(config.Feeds))
	}

	ebi := config.Feeds["ebi"]
	if ebi.Key != "ebi" {
		t.Errorf("Expected key 'ebi', got '%s'", ebi.Key)
	}
	if ebi.GetName() != "eBijuteri" {
		t.Errorf("Expected name 'eBijuteri', got '%s'", ebi.GetName())
	}
	if ebi.GetType() != "ebi" {
		t.Errorf("Expected type to default to key, got '%s'", ebi.GetType())
	}
	if ebi.Headers["X-Token"] != "abc" {
		t.Errorf("Expected X-Token header, got %v", ebi.Headers)
	}
	if !ebi.IsEnabled() {
		t.Error("Expected ebi to be enabled by default")
	}
	if ebi.UseFallback {
		t.Error("Expected fallback to be off by default")
	}

	tkt := config.Feeds["tkt"]
	if tkt.IsEnabled() {
		t.Error("Expected tkt to be disabled")
	}
	if !tkt.UseFallback {
		t.Error("Expected tkt to allow fallback")
	}
	if tkt.GetName() != "tkt" {
		t.Errorf("Expected name to default to key, got '%s'", tkt.GetName())
	}
}

func TestLoadConfigWithDefaults(t *testing.T) {
	path := writeConfig(t, `
feeds:
  ebi:
    url: "https://example.com/ebi.xml"
`)

	config, err := NewLoader(path).Load()
	if err != nil {
		t.Fatal(err)
	}

	if config.Prefix != DefaultPrefix {
		t.Errorf("Expected default prefix '%s', got '%s'", DefaultPrefix, config.Prefix)
	}
	if config.Schedule != DefaultSchedule {
		t.Errorf("Expected default schedule '%s', got '%s'", DefaultSchedule, config.Schedule)
	}
	if config.Defaults.Retries != DefaultRetries {
		t.Errorf("Expected default retries %d, got %d", DefaultRetries, config.Defaults.Retries)
	}
	if config.Defaults.GetTimeout() != 60*time.Second {
		t.Errorf("Expected default timeout 60s, got %v", config.Defaults.GetTimeout())
	}
	if config.Defaults.GetBackoff() != 2*time.Second {
		t.Errorf("Expected default backoff 2s, got %v", config.Defaults.GetBackoff())
	}
}

func TestLoadConfigEmptyFeed(t *testing.T) {
	path := writeConfig(t, `
feeds:
  ebi:
`)

	config, err := NewLoader(path).Load()
	if err != nil {
		t.Fatal(err)
	}

	feed, ok := config.Feeds["ebi"]
	if !ok || feed == nil {
		t.Fatal("Expected empty feed entry to be kept")
	}
	if feed.Key != "ebi" {
		t.Errorf("Expected key 'ebi', got '%s'", feed.Key)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "malformed yaml",
			content: "feeds: [unclosed",
		},
		{
			name: "negative retries",
			content: `
defaults:
  retries: -1
`,
		},
		{
			name: "negative timeout",
			content: `
defaults:
  timeout: -5
`,
		},
		{
			name: "negative backoff",
			content: `
defaults:
  retry_backoff: -1
`,
		},
		{
			name: "negative rate limit",
			content: `
defaults:
  rate_limit: -1
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoader(writeConfig(t, tt.content)).Load(); err == nil {
				t.Error("Expected error for invalid config")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load(); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestFeedKeysSorted(t *testing.T) {
	config := &Config{Feeds: map[string]*FeedConfig{
		"tkt": {},
		"ebi": {},
		"abc": {},
	}}

	keys := config.FeedKeys()
	want := []string{"abc", "ebi", "tkt"}
	if len(keys) != len(want) {
		t.Fatalf("Expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Expected keys %v, got %v", want, keys)
			break
		}
	}
}

func TestResolvePath(t *testing.T) {
	path := writeConfig(t, "feeds: {}")

	resolved, err := ResolvePath(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("Expected '%s', got '%s'", path, resolved)
	}

	if _, err := ResolvePath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing absolute path")
	}
}
