package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

var _ Strategy = (*CurlStrategy)(nil)

// CurlStrategy fetches through an external curl binary. Some CDNs fingerprint
// the Go TLS stack and keep answering 403 no matter which headers are sent.
type CurlStrategy struct {
	Path    string
	Timeout time.Duration
}

func NewCurlStrategy(path string, timeout time.Duration) *CurlStrategy {
	if path == "" {
		path = "curl"
	}
	return &CurlStrategy{Path: path, Timeout: timeout}
}

func (c *CurlStrategy) Fetch(ctx context.Context, req Request, headers http.Header) ([]byte, error) {
	args := []string{
		"--silent", "--show-error", "--location", "--compressed",
		"--user-agent", headers.Get("User-Agent"),
		"--referer", req.URL,
	}
	if c.Timeout > 0 {
		args = append(args, "--max-time", strconv.FormatFloat(c.Timeout.Seconds(), 'f', -1, 64))
	}

	names := make([]string, 0, len(req.Headers))
	for name := range req.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch http.CanonicalHeaderKey(name) {
		case "User-Agent", "Referer":
			continue
		}
		args = append(args, "--header", name+": "+req.Headers[name])
	}
	args = append(args, req.URL)

	cmd := exec.CommandContext(ctx, c.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", c.Path, err, strings.TrimSpace(stderr.String()))
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, fmt.Errorf("%s returned an empty body", c.Path)
	}
	return out, nil
}
