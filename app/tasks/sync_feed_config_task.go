package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/xml-clone/app/config"
	"github.com/lysyi3m/xml-clone/app/database"
)

// SyncFeedConfigTask registers a configured feed in the history database
type SyncFeedConfigTask struct {
	Task
	FeedConfig *config.FeedConfig
	feedRepo   database.FeedRepository
}

func NewSyncFeedConfigTask(feedConfig *config.FeedConfig, feedRepo database.FeedRepository) *SyncFeedConfigTask {
	return &SyncFeedConfigTask{
		Task:       NewTask(TaskTypeSyncFeedConfig, feedConfig.Key),
		FeedConfig: feedConfig,
		feedRepo:   feedRepo,
	}
}

func (t *SyncFeedConfigTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	urlChanged, err := t.feedRepo.UpsertFeed(t.FeedConfig.Key, t.FeedConfig.GetType(), t.FeedConfig.URL)
	if err != nil {
		return fmt.Errorf("failed to sync feed config to database: %w", err)
	}

	if urlChanged {
		slog.Info("Feed URL changed", "feed", t.FeedName, "url", t.FeedConfig.URL)
	}

	slog.Debug("Task completed",
		"type", "SyncFeedConfig",
		"feed", t.FeedName,
		"duration", t.GetDuration())

	return nil
}
