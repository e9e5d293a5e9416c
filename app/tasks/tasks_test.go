package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lysyi3m/xml-clone/app/config"
	"github.com/lysyi3m/xml-clone/app/database"
	"github.com/lysyi3m/xml-clone/app/feed"
	"github.com/lysyi3m/xml-clone/app/fetcher"
)

const (
	ebiURL = "https://ebi.example.com/feed.xml"
	tktURL = "https://tkt.example.com/feed.xml"

	ebiBody = `<?xml version="1.0" encoding="UTF-8"?>
<Urunler>
  <Urun><product_id>1</product_id><stok_kodu>A1</stok_kodu><miktar>5</miktar><fiyat>10.00</fiyat></Urun>
  <Urun><product_id>2</product_id><stok_kodu>A2</stok_kodu><miktar>0</miktar><fiyat>3.50</fiyat></Urun>
</Urunler>`

	tktBody = `<?xml version="1.0" encoding="UTF-8"?>
<data>
  <post><ID>1</ID><Sku>T1</Sku><Stock>2</Stock><Price>9.90</Price></post>
</data>`
)

type stubFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  []string
}

func (f *stubFetcher) Fetch(ctx context.Context, req fetcher.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, req.URL)
	body, ok := f.bodies[req.URL]
	if !ok {
		return nil, fmt.Errorf("%w: HTTP 404 Not Found for %s", fetcher.ErrFetch, req.URL)
	}
	return []byte(body), nil
}

func (f *stubFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestConfig(feeds map[string]*config.FeedConfig) *config.Config {
	for key, feedCfg := range feeds {
		feedCfg.Key = key
	}
	return &config.Config{Prefix: "isteburada_", Feeds: feeds}
}

func boolPtr(b bool) *bool {
	return &b
}

func TestProcessFeedTaskWritesOutput(t *testing.T) {
	outDir := t.TempDir()
	cfg := newTestConfig(map[string]*config.FeedConfig{
		"ebi": {Name: "eBijuteri", URL: ebiURL},
	})
	runner := NewRunner(cfg, &stubFetcher{bodies: map[string]string{ebiURL: ebiBody}}, outDir, nil, nil)

	result := runner.NewTask(cfg.Feeds["ebi"]).Process(context.Background())

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, FailureNone, result.Kind)
	assert.Equal(t, "eBijuteri", result.Name)
	assert.Equal(t, 2, result.ItemCount)
	assert.Equal(t, 2, result.UpdatedCount)
	assert.Equal(t, filepath.Join(outDir, "ebi_out.xml"), result.OutputPath)

	data, err := os.ReadFile(result.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), result.Bytes)
	assert.True(t, strings.HasPrefix(string(data), `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Equal(t, 1, strings.Count(string(data), "<?xml"))
	_, err = feed.ParseDocument(data, feed.ParseStrict)
	assert.NoError(t, err, "output must be well-formed XML")
	assert.Contains(t, string(data), "<barcode>isteburada_A1</barcode>")
	assert.Contains(t, string(data), "<barcode>isteburada_A2</barcode>")
}

func TestProcessFeedTaskFailureKinds(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	tests := []struct {
		name     string
		feed     *config.FeedConfig
		body     string
		outDir   string
		noPrefix bool
		kind     FailureKind
	}{
		{
			name: "missing url",
			feed: &config.FeedConfig{},
			kind: FailureConfig,
		},
		{
			name: "unknown type",
			feed: &config.FeedConfig{URL: ebiURL, Type: "nope"},
			body: ebiBody,
			kind: FailureConfig,
		},
		{
			name: "fetch failure",
			feed: &config.FeedConfig{URL: "https://missing.example.com/", Type: "ebi"},
			kind: FailureTransport,
		},
		{
			name: "strict parse failure",
			feed: &config.FeedConfig{URL: tktURL, Type: "tkt"},
			body: `<data><post><ID>1</ID><Sku>A</Sku></post>`,
			kind: FailureParse,
		},
		{
			name: "wrong document shape",
			feed: &config.FeedConfig{URL: ebiURL, Type: "ebi"},
			body: `<rss version="2.0"><channel><title>x</title></channel></rss>`,
			kind: FailureStructure,
		},
		{
			name: "lost items",
			feed: &config.FeedConfig{URL: ebiURL, Type: "ebi"},
			body: `<Urunler><Urun><stok_kodu>A1</stok_kodu></Urun><Urun><stok_kodu>A2</stok_kodu><![BOGUS[x]]></Urun><Urun><stok_kodu>A3</stok_kodu></Urun></Urunler>`,
			kind: FailureParse,
		},
		{
			name:     "empty prefix",
			feed:     &config.FeedConfig{URL: ebiURL, Type: "ebi"},
			body:     ebiBody,
			noPrefix: true,
			kind:     FailureConfig,
		},
		{
			name:   "write failure",
			feed:   &config.FeedConfig{URL: ebiURL, Type: "ebi"},
			body:   ebiBody,
			outDir: filepath.Join(blocker, "sub"),
			kind:   FailureWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.feed.Key = "feed"
			outDir := tt.outDir
			if outDir == "" {
				outDir = t.TempDir()
			}
			stub := &stubFetcher{bodies: map[string]string{}}
			if tt.body != "" {
				stub.bodies[tt.feed.URL] = tt.body
			}

			cfg := newTestConfig(nil)
			if tt.noPrefix {
				cfg.Prefix = ""
			}

			result := NewRunner(cfg, stub, outDir, nil, nil).NewTask(tt.feed).Process(context.Background())

			assert.False(t, result.Success)
			assert.Error(t, result.Err)
			assert.Equal(t, tt.kind, result.Kind)
			assert.Empty(t, result.OutputPath)
		})
	}
}

func TestProcessFeedTaskZeroItemsKeepsPreviousOutput(t *testing.T) {
	outDir := t.TempDir()
	previous := filepath.Join(outDir, "ebi_out.xml")
	require.NoError(t, os.WriteFile(previous, []byte("previous good output"), 0644))

	cfg := newTestConfig(map[string]*config.FeedConfig{"ebi": {URL: ebiURL}})
	stub := &stubFetcher{bodies: map[string]string{ebiURL: `<Urunler></Urunler>`}}

	result := NewRunner(cfg, stub, outDir, nil, nil).NewTask(cfg.Feeds["ebi"]).Process(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, FailureStructure, result.Kind)

	data, err := os.ReadFile(previous)
	require.NoError(t, err)
	assert.Equal(t, "previous good output", string(data))
}

func TestRunnerIsolatesFailures(t *testing.T) {
	outDir := t.TempDir()
	cfg := newTestConfig(map[string]*config.FeedConfig{
		"tkt": {Name: "TeknoTok", URL: tktURL},
		"ebi": {Name: "eBijuteri", URL: "https://down.example.com/"},
		"old": {URL: ebiURL, Type: "ebi", Enabled: boolPtr(false)},
	})
	stub := &stubFetcher{bodies: map[string]string{tktURL: tktBody, ebiURL: ebiBody}}

	summary, err := NewRunner(cfg, stub, outDir, nil, nil).Run(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, summary.Results, 2, "disabled feed is skipped")
	assert.Equal(t, "ebi", summary.Results[0].FeedKey)
	assert.False(t, summary.Results[0].Success)
	assert.Equal(t, FailureTransport, summary.Results[0].Kind)
	assert.Equal(t, "tkt", summary.Results[1].FeedKey)
	assert.True(t, summary.Results[1].Success)
	assert.Equal(t, 1, summary.Results[1].UpdatedCount)
	assert.True(t, summary.Failed())

	assert.Equal(t, []string{"https://down.example.com/", tktURL}, stub.Calls())
	assert.FileExists(t, filepath.Join(outDir, "tkt_out.xml"))
	assert.NoFileExists(t, filepath.Join(outDir, "ebi_out.xml"))
}

func TestRunnerOnly(t *testing.T) {
	cfg := newTestConfig(map[string]*config.FeedConfig{
		"ebi": {URL: ebiURL, Enabled: boolPtr(false)},
		"tkt": {URL: tktURL},
	})
	stub := &stubFetcher{bodies: map[string]string{tktURL: tktBody, ebiURL: ebiBody}}
	runner := NewRunner(cfg, stub, t.TempDir(), nil, nil)

	summary, err := runner.Run(context.Background(), "ebi")
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].Success)
	assert.False(t, summary.Failed())

	_, err = runner.Run(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Available: [ebi tkt]")
}

func TestRunnerRecordsHistory(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	feedRepo := database.NewFeedRepository(db)
	runRepo := database.NewRunRepository(db)

	cfg := newTestConfig(map[string]*config.FeedConfig{
		"ebi": {URL: ebiURL},
		"tkt": {URL: "https://down.example.com/"},
	})
	stub := &stubFetcher{bodies: map[string]string{ebiURL: ebiBody}}

	_, err = NewRunner(cfg, stub, t.TempDir(), feedRepo, runRepo).Run(context.Background(), "")
	require.NoError(t, err)

	latest, err := runRepo.GetLatestRun("ebi")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, database.RunStatusSuccess, latest.Status)
	assert.Equal(t, 2, latest.ItemCount)

	failed, err := runRepo.GetLatestRun("tkt")
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, database.RunStatusFailed, failed.Status)
	assert.Equal(t, string(FailureTransport), failed.FailureKind)
	assert.NotEmpty(t, failed.Error)

	row, err := feedRepo.GetFeed("tkt")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, database.RunStatusFailed, row.LastStatus)
	assert.NotNil(t, row.LastRunAt)
}

func TestSummaryPrint(t *testing.T) {
	summary := &Summary{Results: []Result{
		{Name: "eBijuteri", Success: true, ItemCount: 3, UpdatedCount: 2, OutputPath: "ebi_out.xml"},
		{Name: "TeknoTok", Kind: FailureTransport, Err: errors.New("HTTP 503")},
	}}

	var buf bytes.Buffer
	summary.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "SUMMARY")
	assert.Contains(t, out, "eBijuteri:\n  Items processed: 3\n  Fields updated: 2\n")
	assert.Contains(t, out, "TeknoTok: FAILED (transport)")
	assert.Contains(t, out, "HTTP 503")
}

func TestSchedulerRunsEnabledFeedsAndTrigger(t *testing.T) {
	defer goleak.VerifyNone(t)

	outDir := t.TempDir()
	cfg := newTestConfig(map[string]*config.FeedConfig{
		"ebi": {URL: ebiURL},
		"tkt": {URL: tktURL, Enabled: boolPtr(false)},
	})
	stub := &stubFetcher{bodies: map[string]string{ebiURL: ebiBody, tktURL: tktBody}}

	scheduler := NewScheduler(NewRunner(cfg, stub, outDir, nil, nil), "@every 1h")
	require.NoError(t, scheduler.Start())

	assert.Eventually(t, func() bool {
		return len(stub.Calls()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, scheduler.Trigger("tkt"))
	assert.Eventually(t, func() bool {
		return len(stub.Calls()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(outDir, "tkt_out.xml"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	assert.Error(t, scheduler.Trigger("nope"))

	scheduler.Stop()
	assert.Error(t, scheduler.Trigger("ebi"), "stopped scheduler accepts no tasks")
}

func TestSchedulerInvalidSchedule(t *testing.T) {
	defer goleak.VerifyNone(t)

	scheduler := NewScheduler(NewRunner(newTestConfig(nil), &stubFetcher{}, t.TempDir(), nil, nil), "not a schedule")
	assert.Error(t, scheduler.Start())
	scheduler.cancel()
}
