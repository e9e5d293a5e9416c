package database

import (
	"time"
)

type FeedRepository interface {
	GetFeed(feedKey string) (*Feed, error)
	GetFeeds() ([]Feed, error)
	GetFeedCount() (int, error)

	UpsertFeed(feedKey, feedType, feedURL string) (bool, error)
	UpdateLastRun(feedKey, status string, at time.Time) error
}

type RunRepository interface {
	RecordRun(run *Run) error
	GetRuns(feedKey string, limit int) ([]Run, error)
	GetLatestRun(feedKey string) (*Run, error)
	GetRunStats() (RunStats, error)
}
