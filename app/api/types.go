package api

import (
	"github.com/lysyi3m/xml-clone/app/database"
	"github.com/lysyi3m/xml-clone/app/tasks"
)

type Handler struct {
	runner    *tasks.Runner
	scheduler tasks.TaskSchedulerInterface
	fetcher   tasks.Fetcher
	feedRepo  database.FeedRepository
	runRepo   database.RunRepository
	version   string
}
