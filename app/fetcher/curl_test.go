package fetcher

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeFakeCurl(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake curl uses a shell script")
	}
	path := filepath.Join(t.TempDir(), "curl")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCurlStrategyPassesHeaders(t *testing.T) {
	path := writeFakeCurl(t, `printf '<args>%s</args>' "$*"`)
	strategy := NewCurlStrategy(path, 30*time.Second)

	headers := http.Header{}
	headers.Set("User-Agent", "TestAgent/1.0")

	body, err := strategy.Fetch(context.Background(), Request{
		URL:     "https://example.com/feed.xml",
		Headers: map[string]string{"X-Token": "abc", "User-Agent": "ignored"},
	}, headers)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	out := string(body)
	for _, want := range []string{
		"--user-agent TestAgent/1.0",
		"--referer https://example.com/feed.xml",
		"--max-time 30",
		"--header X-Token: abc",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected curl args to contain %q, got: %s", want, out)
		}
	}
	if strings.Contains(out, "ignored") {
		t.Errorf("User-Agent override must come from the header set, got: %s", out)
	}
}

func TestCurlStrategyFractionalTimeout(t *testing.T) {
	path := writeFakeCurl(t, `printf '<args>%s</args>' "$*"`)

	body, err := NewCurlStrategy(path, 500*time.Millisecond).Fetch(context.Background(), Request{URL: "https://example.com/"}, http.Header{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(string(body), "--max-time 0.5 ") {
		t.Errorf("Expected a sub-second --max-time, got: %s", body)
	}
}

func TestCurlStrategyFailure(t *testing.T) {
	path := writeFakeCurl(t, `echo "curl: (22) forbidden" >&2; exit 22`)

	_, err := NewCurlStrategy(path, 0).Fetch(context.Background(), Request{URL: "https://example.com/"}, http.Header{})
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.Contains(err.Error(), "forbidden") {
		t.Errorf("Expected stderr in error, got: %v", err)
	}
}

func TestCurlStrategyEmptyBody(t *testing.T) {
	path := writeFakeCurl(t, `exit 0`)

	if _, err := NewCurlStrategy(path, 0).Fetch(context.Background(), Request{URL: "https://example.com/"}, http.Header{}); err == nil {
		t.Error("Expected error for empty body")
	}
}

func TestCurlStrategyMissingBinary(t *testing.T) {
	strategy := NewCurlStrategy(filepath.Join(t.TempDir(), "no-such-curl"), 0)
	if _, err := strategy.Fetch(context.Background(), Request{URL: "https://example.com/"}, http.Header{}); err == nil {
		t.Error("Expected error for missing binary")
	}
}
