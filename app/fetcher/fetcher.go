package fetcher

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"
)

var ErrFetch = errors.New("feed could not be fetched")

const (
	DefaultRetries   = 5
	DefaultBackoff   = 2 * time.Second
	DefaultTimeout   = 60 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var retryableStatus = map[int]bool{
	http.StatusForbidden:           true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

type Options struct {
	Retries   int
	Backoff   time.Duration
	Timeout   time.Duration // per attempt
	UserAgent string
	RateLimit float64 // requests per second, 0 disables limiting
}

type Request struct {
	URL           string
	Headers       map[string]string
	AllowFallback bool
}

// Strategy is an alternate way of retrieving a feed, used when the HTTP client
// keeps being refused.
type Strategy interface {
	Fetch(ctx context.Context, req Request, headers http.Header) ([]byte, error)
}

type Fetcher struct {
	opts      Options
	transport http.RoundTripper
	fallback  Strategy
	limiter   *rate.Limiter
	sleep     func(ctx context.Context, d time.Duration) error
}

func New(opts Options, fallback Strategy) *Fetcher {
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &Fetcher{
		opts: opts,
		transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
		fallback: fallback,
		limiter:  rate.NewLimiter(limit, 1),
		sleep:    sleepContext,
	}
}

// session holds the per-call cookie jar and header set so no state leaks
// between fetches.
type session struct {
	client  *http.Client
	headers http.Header
	origin  string
	primed  bool
}

func (f *Fetcher) newSession(req Request) (*session, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL '%s': %w", req.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme '%s'", u.Scheme)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	headers := http.Header{}
	headers.Set("User-Agent", f.opts.UserAgent)
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	headers.Set("Accept-Language", "en-US,en;q=0.5")
	headers.Set("Accept-Encoding", "gzip, deflate")
	headers.Set("Connection", "keep-alive")
	headers.Set("Referer", req.URL)
	for k, v := range req.Headers {
		headers.Set(k, v)
	}

	s := &session{
		client:  &http.Client{Transport: f.transport, Jar: jar},
		headers: headers,
	}
	if u.Host != "" {
		s.origin = u.Scheme + "://" + u.Host + "/"
	}
	return s, nil
}

// Fetch retrieves the feed body. Retryable statuses and transport errors are
// retried with exponential backoff; the first 403 primes session cookies from
// the site root and retries at once.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	s, err := f.newSession(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	var lastErr error
	for attempt := 0; attempt < f.opts.Retries; attempt++ {
		body, status, err := f.get(ctx, s, req.URL)
		if status == http.StatusForbidden && !s.primed && s.origin != "" {
			s.primed = true
			f.prime(ctx, s)
			body, status, err = f.get(ctx, s, req.URL)
		}

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrFetch, ctx.Err())
			}
			lastErr = fmt.Errorf("request error: %w", err)
		case status >= 200 && status < 300:
			if len(body) == 0 {
				return nil, fmt.Errorf("%w: empty response body from %s", ErrFetch, req.URL)
			}
			f.inspect(req.URL, body)
			return body, nil
		case retryableStatus[status]:
			lastErr = fmt.Errorf("HTTP %d %s", status, http.StatusText(status))
		default:
			return nil, fmt.Errorf("%w: HTTP %d %s for %s", ErrFetch, status, http.StatusText(status), req.URL)
		}

		if attempt == f.opts.Retries-1 {
			if status == http.StatusForbidden && req.AllowFallback {
				return f.fetchFallback(ctx, req, s.headers, lastErr)
			}
			break
		}

		wait := f.opts.Backoff * time.Duration(1<<attempt)
		slog.Warn("Fetch failed, retrying",
			"url", req.URL,
			"error", lastErr,
			"wait", wait.String(),
			"attempt", attempt+1,
			"retries", f.opts.Retries)
		if err := f.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrFetch, req.URL, f.opts.Retries, lastErr)
}

func (f *Fetcher) get(ctx context.Context, s *session, target string) ([]byte, int, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = s.headers.Clone()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp.StatusCode, nil
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// prime visits the site root once so the session picks up whatever cookies
// the site hands out. Errors are ignored.
func (f *Fetcher) prime(ctx context.Context, s *session) {
	slog.Debug("Priming session cookies", "origin", s.origin)
	if _, status, err := f.get(ctx, s, s.origin); err != nil {
		slog.Debug("Cookie priming failed", "origin", s.origin, "error", err)
	} else {
		slog.Debug("Cookie priming done", "origin", s.origin, "status", status)
	}
}

func (f *Fetcher) fetchFallback(ctx context.Context, req Request, headers http.Header, cause error) ([]byte, error) {
	if f.fallback == nil {
		return nil, fmt.Errorf("%w: %s still refused and no fallback is configured: %v", ErrFetch, req.URL, cause)
	}

	slog.Info("HTTP client refused, trying fallback", "url", req.URL)
	body, err := f.fallback.Fetch(ctx, req, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: fallback failed for %s: %v", ErrFetch, req.URL, err)
	}
	if !looksLikeMarkup(body) {
		return nil, fmt.Errorf("%w: fallback returned no markup for %s", ErrFetch, req.URL)
	}

	slog.Info("Fallback fetch succeeded", "url", req.URL, "size", humanize.Bytes(uint64(len(body))))
	return body, nil
}

// inspect logs the payload size and warns when a site answered with an HTML
// page (typically a bot challenge) instead of a feed.
func (f *Fetcher) inspect(target string, body []byte) {
	slog.Debug("Fetched feed", "url", target, "size", humanize.Bytes(uint64(len(body))))

	if !looksLikeHTML(body) {
		return
	}

	title := ""
	pageURL, _ := url.Parse(target)
	if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil {
		title = article.Title
	}
	slog.Warn("Response is an HTML page, not an XML feed", "url", target, "title", title)
}

func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}
	return io.ReadAll(r)
}

func looksLikeMarkup(body []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("<"))
}

func looksLikeHTML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
