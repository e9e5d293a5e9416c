package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lysyi3m/xml-clone/app/config"
	"github.com/lysyi3m/xml-clone/app/database"
	"github.com/lysyi3m/xml-clone/app/feed"
)

// Runner processes configured feeds one after another
type Runner struct {
	config      *config.Config
	fetcher     Fetcher
	transformer *feed.Transformer
	writer      *feed.Writer
	outDir      string
	feedRepo    database.FeedRepository
	runRepo     database.RunRepository
}

func NewRunner(cfg *config.Config, fetcher Fetcher, outDir string, feedRepo database.FeedRepository, runRepo database.RunRepository) *Runner {
	return &Runner{
		config:      cfg,
		fetcher:     fetcher,
		transformer: feed.NewTransformer(cfg.Prefix),
		writer:      feed.NewWriter(),
		outDir:      outDir,
		feedRepo:    feedRepo,
		runRepo:     runRepo,
	}
}

func (r *Runner) Config() *config.Config {
	return r.config
}

func (r *Runner) OutDir() string {
	return r.outDir
}

// Feed returns the configuration of feedKey or an error naming the known keys
func (r *Runner) Feed(feedKey string) (*config.FeedConfig, error) {
	feedConfig, ok := r.config.Feeds[feedKey]
	if !ok {
		return nil, fmt.Errorf("unknown feed '%s'. Available: [%s]", feedKey, strings.Join(r.config.FeedKeys(), " "))
	}
	return feedConfig, nil
}

// EnabledKeys returns the sorted keys of feeds that are not disabled
func (r *Runner) EnabledKeys() []string {
	var keys []string
	for _, key := range r.config.FeedKeys() {
		if r.config.Feeds[key].IsEnabled() {
			keys = append(keys, key)
		}
	}
	return keys
}

func (r *Runner) NewTask(feedConfig *config.FeedConfig) *ProcessFeedTask {
	return NewProcessFeedTask(feedConfig, r.fetcher, r.transformer, r.writer, r.outDir, r.feedRepo, r.runRepo)
}

// SyncFeeds registers every configured feed in the history database
func (r *Runner) SyncFeeds(ctx context.Context) {
	if r.feedRepo == nil {
		return
	}
	for _, key := range r.config.FeedKeys() {
		task := NewSyncFeedConfigTask(r.config.Feeds[key], r.feedRepo)
		task.Start()
		if err := task.Execute(ctx); err != nil {
			slog.Warn("Failed to sync feed", "feed", key, "error", err)
		}
	}
}

// Run processes all enabled feeds, or only the named one, sequentially.
// A failing feed never stops the remaining ones.
func (r *Runner) Run(ctx context.Context, only string) (*Summary, error) {
	keys := r.config.FeedKeys()
	if only != "" {
		if _, err := r.Feed(only); err != nil {
			return nil, err
		}
		keys = []string{only}
	}

	r.SyncFeeds(ctx)

	summary := &Summary{}
	for _, key := range keys {
		feedConfig := r.config.Feeds[key]
		if only == "" && !feedConfig.IsEnabled() {
			slog.Debug("Feed disabled, skipping", "feed", key)
			continue
		}

		task := r.NewTask(feedConfig)
		task.Start()
		summary.Results = append(summary.Results, task.Process(ctx))
	}

	return summary, nil
}

// Summary aggregates the per-feed results of a run
type Summary struct {
	Results []Result
}

func (s *Summary) Failed() bool {
	for _, result := range s.Results {
		if !result.Success {
			return true
		}
	}
	return false
}

func (s *Summary) Print(w io.Writer) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\nSUMMARY\n%s\n", rule, rule)

	for _, result := range s.Results {
		if !result.Success {
			fmt.Fprintf(w, "%s: FAILED (%s)\n", result.Name, result.Kind)
			fmt.Fprintf(w, "  %v\n", result.Err)
			continue
		}
		fmt.Fprintf(w, "%s:\n", result.Name)
		fmt.Fprintf(w, "  Items processed: %d\n", result.ItemCount)
		fmt.Fprintf(w, "  Fields updated: %d\n", result.UpdatedCount)
		fmt.Fprintf(w, "  Output: %s\n", result.OutputPath)
	}
}
