package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lysyi3m/xml-clone/app/api"
	"github.com/lysyi3m/xml-clone/app/cfg"
	"github.com/lysyi3m/xml-clone/app/config"
	"github.com/lysyi3m/xml-clone/app/database"
	"github.com/lysyi3m/xml-clone/app/feed"
	"github.com/lysyi3m/xml-clone/app/fetcher"
	"github.com/lysyi3m/xml-clone/app/tasks"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	appCfg, err := cfg.Load(os.Args[1:])
	if errors.Is(err, cfg.ErrHelp) {
		return 0
	}
	if err != nil {
		// go-flags already printed the problem
		return 1
	}

	cfg.SetupLogger(appCfg.Debug)
	slog.Debug("Starting XML Clone", "version", appCfg.Version, "command", string(appCfg.Command))

	switch appCfg.Command {
	case cfg.CommandCompare:
		return runCompare(appCfg)
	case cfg.CommandServe:
		return runServe(appCfg)
	default:
		return runClone(appCfg)
	}
}

func runCompare(appCfg *cfg.Cfg) int {
	schema, err := feed.LookupSchema(appCfg.CompareType)
	if err != nil {
		slog.Error("Unknown feed type", "error", err)
		return 1
	}

	report, err := feed.CompareFiles(schema, appCfg.CompareOriginal, appCfg.CompareCloned)
	if err != nil {
		slog.Error("Comparison failed", "error", err)
		return 1
	}

	report.Print(os.Stdout, schema)

	if report.HasDifferences() {
		return 1
	}
	return 0
}

func runClone(appCfg *cfg.Cfg) int {
	exitCode := clone(appCfg)

	if appCfg.Pause {
		fmt.Println("\nİşlem tamamlandı. Çıkmak için Enter'a bas...")
		bufio.NewReader(os.Stdin).ReadString('\n')
	}

	return exitCode
}

func clone(appCfg *cfg.Cfg) int {
	feedsConfig, err := loadFeedsConfig(appCfg)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	db, feedRepo, runRepo := openHistory(appCfg.DBPath)
	if db != nil {
		defer db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := tasks.NewRunner(feedsConfig, newFetcher(appCfg, feedsConfig), appCfg.OutDir, feedRepo, runRepo)
	summary, err := runner.Run(ctx, appCfg.Only)
	if err != nil {
		slog.Error("Run failed", "error", err)
		return 1
	}

	summary.Print(os.Stdout)

	if summary.Failed() {
		return 1
	}
	return 0
}

func runServe(appCfg *cfg.Cfg) int {
	feedsConfig, err := loadFeedsConfig(appCfg)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	db, feedRepo, runRepo := openHistory(appCfg.DBPath)
	if db != nil {
		defer db.Close()
	}

	feedFetcher := newFetcher(appCfg, feedsConfig)
	runner := tasks.NewRunner(feedsConfig, feedFetcher, appCfg.OutDir, feedRepo, runRepo)

	scheduler := tasks.NewScheduler(runner, feedsConfig.Schedule)
	if err := scheduler.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		return 1
	}
	defer scheduler.Stop()

	handler := api.NewHandler(runner, scheduler, feedFetcher, feedRepo, runRepo, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "port", appCfg.Port, "api_enabled", appCfg.APIAccessKey != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
		exitCode = 1
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	return exitCode
}

// loadFeedsConfig reads the feeds file and applies command-line overrides
func loadFeedsConfig(appCfg *cfg.Cfg) (*config.Config, error) {
	path, err := config.ResolvePath(appCfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	feedsConfig, err := config.NewLoader(path).Load()
	if err != nil {
		return nil, err
	}

	if appCfg.Prefix != "" {
		feedsConfig.Prefix = appCfg.Prefix
	}
	if appCfg.Retries > 0 {
		feedsConfig.Defaults.Retries = appCfg.Retries
	}
	if appCfg.Timeout > 0 {
		feedsConfig.Defaults.Timeout = int(appCfg.Timeout / time.Second)
	}

	slog.Info("Configuration loaded",
		"path", path,
		"feeds", len(feedsConfig.Feeds),
		"prefix", feedsConfig.Prefix)

	return feedsConfig, nil
}

func newFetcher(appCfg *cfg.Cfg, feedsConfig *config.Config) *fetcher.Fetcher {
	defaults := feedsConfig.Defaults
	return fetcher.New(fetcher.Options{
		Retries:   defaults.Retries,
		Backoff:   defaults.GetBackoff(),
		Timeout:   defaults.GetTimeout(),
		UserAgent: appCfg.UserAgent,
		RateLimit: defaults.RateLimit,
	}, fetcher.NewCurlStrategy(appCfg.CurlPath, defaults.GetTimeout()))
}

// openHistory opens the run history database. History is optional: any
// failure is logged and the run continues without it.
func openHistory(path string) (*database.DB, database.FeedRepository, database.RunRepository) {
	if path == "" {
		return nil, nil, nil
	}

	db, err := database.Open(path)
	if err != nil {
		slog.Warn("Run history disabled", "path", path, "error", err)
		return nil, nil, nil
	}

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Warn("Run history disabled", "path", path, "error", err)
		db.Close()
		return nil, nil, nil
	}
	slog.Debug("Database ready", "path", path, "version", version, "dirty", dirty)

	return db, database.NewFeedRepository(db), database.NewRunRepository(db)
}
