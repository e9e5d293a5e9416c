package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/xml-clone/app/fetcher"
)

// Fetcher retrieves raw feed bytes. Implemented by *fetcher.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) ([]byte, error)
}

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetFeedName() string
	Start()
	GetDuration() time.Duration
}

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by serve mode to run clones on a schedule and on demand.
//
//	scheduler := NewScheduler(runner, "@every 1h")
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.Trigger("ebi")
type TaskSchedulerInterface interface {
	Start() error
	Stop()
	EnqueueTask(task TaskInterface) error
	Trigger(feedKey string) error
}
