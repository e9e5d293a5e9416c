package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lysyi3m/xml-clone/app/config"
	"github.com/lysyi3m/xml-clone/app/database"
	"github.com/lysyi3m/xml-clone/app/feed"
	"github.com/lysyi3m/xml-clone/app/fetcher"
)

// ErrConfig marks a feed that cannot be processed because of its configuration
var ErrConfig = errors.New("invalid feed configuration")

type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureTransport FailureKind = "transport"
	FailureParse     FailureKind = "parse"
	FailureStructure FailureKind = "structure"
	FailureWrite     FailureKind = "write"
	FailureConfig    FailureKind = "config"
)

// Result is the per-feed outcome of a clone run
type Result struct {
	FeedKey      string
	Name         string
	Success      bool
	Kind         FailureKind
	Err          error
	ItemCount    int
	UpdatedCount int
	OutputPath   string
	Bytes        int64
	Duration     time.Duration
}

func classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrConfig), errors.Is(err, feed.ErrConfig):
		return FailureConfig
	case errors.Is(err, feed.ErrParse):
		return FailureParse
	case errors.Is(err, feed.ErrStructure):
		return FailureStructure
	case errors.Is(err, feed.ErrWrite):
		return FailureWrite
	default:
		return FailureTransport
	}
}

// OutputPath returns where the cloned document of a feed is written
func OutputPath(outDir string, feedConfig *config.FeedConfig) (string, error) {
	schema, err := feed.LookupSchema(feedConfig.GetType())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return OutputPathFor(outDir, schema), nil
}

func OutputPathFor(outDir string, schema *feed.Schema) string {
	return filepath.Join(outDir, schema.OutputFile)
}

type ProcessFeedTask struct {
	Task
	FeedConfig  *config.FeedConfig
	fetcher     Fetcher
	transformer *feed.Transformer
	writer      *feed.Writer
	outDir      string
	feedRepo    database.FeedRepository
	runRepo     database.RunRepository
}

// NewProcessFeedTask builds the fetch-transform-write task for one feed.
// feedRepo and runRepo may be nil when run history is disabled.
func NewProcessFeedTask(feedConfig *config.FeedConfig, fetcher Fetcher, transformer *feed.Transformer,
	writer *feed.Writer, outDir string, feedRepo database.FeedRepository, runRepo database.RunRepository) *ProcessFeedTask {
	return &ProcessFeedTask{
		Task:        NewTask(TaskTypeProcessFeed, feedConfig.Key),
		FeedConfig:  feedConfig,
		fetcher:     fetcher,
		transformer: transformer,
		writer:      writer,
		outDir:      outDir,
		feedRepo:    feedRepo,
		runRepo:     runRepo,
	}
}

func (t *ProcessFeedTask) Execute(ctx context.Context) error {
	return t.Process(ctx).Err
}

// Process runs the feed through fetch, transform and write. Failures are
// returned in the Result, never panicked or propagated to sibling feeds.
func (t *ProcessFeedTask) Process(ctx context.Context) Result {
	if t.StartedAt == nil {
		t.Start()
	}

	result := Result{
		FeedKey: t.FeedName,
		Name:    t.FeedConfig.GetName(),
	}

	err := t.process(ctx, &result)
	result.Success = err == nil
	result.Err = err
	result.Kind = classify(err)
	result.Duration = t.GetDuration()

	if err != nil {
		slog.Error("Task failed",
			"type", "ProcessFeed",
			"feed", t.FeedName,
			"kind", string(result.Kind),
			"error", err)
	} else {
		slog.Info("Task completed",
			"type", "ProcessFeed",
			"feed", t.FeedName,
			"duration", result.Duration,
			"items", result.ItemCount,
			"updated", result.UpdatedCount,
			"size", humanize.Bytes(uint64(result.Bytes)),
			"output", result.OutputPath)
	}

	t.recordRun(result)

	return result
}

func (t *ProcessFeedTask) process(ctx context.Context, result *Result) error {
	if t.FeedConfig.URL == "" {
		return fmt.Errorf("%w: no URL configured for %s", ErrConfig, t.FeedName)
	}

	schema, err := feed.LookupSchema(t.FeedConfig.GetType())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	slog.Info("Processing feed", "feed", t.FeedName, "name", result.Name, "url", t.FeedConfig.URL)

	data, err := t.fetcher.Fetch(ctx, fetcher.Request{
		URL:           t.FeedConfig.URL,
		Headers:       t.FeedConfig.Headers,
		AllowFallback: t.FeedConfig.UseFallback,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	transformed, err := t.transformer.Run(schema, data)
	if err != nil {
		return err
	}
	result.ItemCount = transformed.ItemCount
	result.UpdatedCount = transformed.UpdatedCount

	// an independent recount of zero must never replace a good output file
	if transformed.ItemCount == 0 {
		return fmt.Errorf("%w: item count is 0, skipping write", feed.ErrStructure)
	}

	dest := OutputPathFor(t.outDir, schema)
	if err := t.writer.Write(transformed.Document, dest); err != nil {
		return err
	}
	result.OutputPath = dest

	if info, err := os.Stat(dest); err == nil {
		result.Bytes = info.Size()
	}

	return nil
}

func (t *ProcessFeedTask) recordRun(result Result) {
	if t.runRepo == nil {
		return
	}

	finished := time.Now()
	run := &database.Run{
		FeedKey:      result.FeedKey,
		FeedType:     t.FeedConfig.GetType(),
		Status:       database.RunStatusSuccess,
		FailureKind:  string(result.Kind),
		ItemCount:    result.ItemCount,
		UpdatedCount: result.UpdatedCount,
		Bytes:        result.Bytes,
		OutputPath:   result.OutputPath,
		StartedAt:    finished.Add(-result.Duration),
		FinishedAt:   finished,
	}
	if !result.Success {
		run.Status = database.RunStatusFailed
		run.Error = result.Err.Error()
	}

	if err := t.runRepo.RecordRun(run); err != nil {
		slog.Warn("Failed to record run", "feed", result.FeedKey, "error", err)
	}

	if t.feedRepo != nil {
		if err := t.feedRepo.UpdateLastRun(result.FeedKey, run.Status, finished); err != nil {
			slog.Warn("Failed to update feed", "feed", result.FeedKey, "error", err)
		}
	}
}
