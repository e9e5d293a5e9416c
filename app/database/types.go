package database

import (
	"time"
)

const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// Feed is a configured feed as last registered from the config file
type Feed struct {
	Key        string     `json:"key"`
	Type       string     `json:"type"`
	URL        string     `json:"url"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Run is the outcome of one fetch-transform-write cycle for a feed
type Run struct {
	ID           string    `json:"id"`
	FeedKey      string    `json:"feed_key"`
	FeedType     string    `json:"feed_type"`
	Status       string    `json:"status"`
	FailureKind  string    `json:"failure_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
	ItemCount    int       `json:"item_count"`
	UpdatedCount int       `json:"updated_count"`
	Bytes        int64     `json:"bytes"`
	OutputPath   string    `json:"output_path,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// RunStats aggregates the run history
type RunStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
