package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/xml-clone/app/database"
	"github.com/lysyi3m/xml-clone/app/feed"
	"github.com/lysyi3m/xml-clone/app/fetcher"
	"github.com/lysyi3m/xml-clone/app/tasks"
)

const defaultRunsLimit = 20

// NewHandler wires the HTTP handlers. feedRepo and runRepo may be nil when
// run history is disabled.
func NewHandler(runner *tasks.Runner, scheduler tasks.TaskSchedulerInterface, fetcher tasks.Fetcher,
	feedRepo database.FeedRepository, runRepo database.RunRepository, version string) *Handler {
	return &Handler{
		runner:    runner,
		scheduler: scheduler,
		fetcher:   fetcher,
		feedRepo:  feedRepo,
		runRepo:   runRepo,
		version:   version,
	}
}

// GetFeed serves the last cloned document of a feed
func (h *Handler) GetFeed(c *gin.Context) {
	name := c.Param("name")

	feedConfig, err := h.runner.Feed(name)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	path, err := tasks.OutputPath(h.runner.OutDir(), feedConfig)
	if err != nil {
		slog.Error("Feed type not supported", "feed", name, "error", err)
		c.Status(http.StatusNotFound)
		return
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to stat output", "feed", name, "path", path, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read output", "feed", name, "path", path, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if schema, err := feed.LookupSchema(feedConfig.GetType()); err == nil {
		c.Header("X-Feed-Items", strconv.Itoa(feed.CountItems(schema, data)))
	}
	c.Header("X-Feed-Name", name)
	c.Header("X-Feed-Updated", info.ModTime().UTC().Format(time.RFC3339))

	c.Data(http.StatusOK, "application/xml; charset=utf-8", data)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"feeds":     len(h.runner.Config().Feeds),
	}

	if h.feedRepo != nil {
		if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
			health["registered_feeds"] = feedCount
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	cfg := h.runner.Config()

	outputs := gin.H{}
	for _, key := range cfg.FeedKeys() {
		path, err := tasks.OutputPath(h.runner.OutDir(), cfg.Feeds[key])
		if err != nil {
			continue
		}
		if info, err := os.Stat(path); err == nil {
			outputs[key] = gin.H{
				"bytes":      info.Size(),
				"updated_at": info.ModTime().UTC(),
			}
		}
	}

	stats := gin.H{
		"feeds":         len(cfg.Feeds),
		"enabled_feeds": len(h.runner.EnabledKeys()),
		"schedule":      cfg.Schedule,
		"outputs":       outputs,
	}

	if h.runRepo != nil {
		runStats, err := h.runRepo.GetRunStats()
		if err != nil {
			slog.Error("Database error", "operation", "get_run_stats", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		stats["runs"] = runStats
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	cfg := h.runner.Config()

	feeds := make([]gin.H, 0, len(cfg.Feeds))
	for _, key := range cfg.FeedKeys() {
		feedConfig := cfg.Feeds[key]
		feedInfo := gin.H{
			"key":          key,
			"name":         feedConfig.GetName(),
			"type":         feedConfig.GetType(),
			"url":          feedConfig.URL,
			"enabled":      feedConfig.IsEnabled(),
			"use_fallback": feedConfig.UseFallback,
		}

		if path, err := tasks.OutputPath(h.runner.OutDir(), feedConfig); err == nil {
			feedInfo["output"] = path
		}

		if h.runRepo != nil {
			if run, err := h.runRepo.GetLatestRun(key); err == nil && run != nil {
				feedInfo["last_run"] = run
			}
		}

		feeds = append(feeds, feedInfo)
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIGetFeedRuns(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.runner.Feed(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed configuration not found"})
		return
	}

	if h.runRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run history is disabled"})
		return
	}

	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = n
	}

	runs, err := h.runRepo.GetRuns(name, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_runs", "feed", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feed":  name,
		"runs":  runs,
		"total": len(runs),
	})
}

func (h *Handler) APIRefreshFeed(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.runner.Feed(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed configuration not found"})
		return
	}

	if err := h.scheduler.Trigger(name); err != nil {
		slog.Error("Error enqueueing process task", "feed", name, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue process task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Feed refresh enqueued",
		"feed":    name,
	})
}

// APICompareFeed fetches the live source feed and compares it with the last
// cloned output
func (h *Handler) APICompareFeed(c *gin.Context) {
	name := c.Param("name")

	feedConfig, err := h.runner.Feed(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed configuration not found"})
		return
	}

	schema, err := feed.LookupSchema(feedConfig.GetType())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed type not supported", "details": err.Error()})
		return
	}

	cloned, err := os.ReadFile(tasks.OutputPathFor(h.runner.OutDir(), schema))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No cloned output available", "details": err.Error()})
		return
	}

	original, err := h.fetcher.Fetch(c.Request.Context(), fetcher.Request{
		URL:           feedConfig.URL,
		Headers:       feedConfig.Headers,
		AllowFallback: feedConfig.UseFallback,
	})
	if err != nil {
		slog.Error("Failed to fetch source feed", "feed", name, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch source feed", "details": err.Error()})
		return
	}

	report, err := feed.Compare(schema, original, cloned)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Comparison failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feed":            name,
		"type":            schema.Name,
		"has_differences": report.HasDifferences(),
		"report":          report,
	})
}
