package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var _ RunRepository = (*runRepository)(nil)

type runRepository struct {
	db *DB
}

func NewRunRepository(db *DB) RunRepository {
	return &runRepository{db: db}
}

// RecordRun stores a run, assigning an ID when the run has none
func (r *runRepository) RecordRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	_, err := r.db.Exec(`
		INSERT INTO runs (
			id, feed_key, feed_type, status, failure_kind, error,
			item_count, updated_count, bytes, output_path, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.FeedKey, run.FeedType, run.Status, run.FailureKind, run.Error,
		run.ItemCount, run.UpdatedCount, run.Bytes, run.OutputPath,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// GetRuns returns the most recent runs of a feed, newest first
func (r *runRepository) GetRuns(feedKey string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT id, feed_key, feed_type, status, failure_kind, error,
		       item_count, updated_count, bytes, output_path, started_at, finished_at
		FROM runs
		WHERE feed_key = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, feedKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *runRepository) GetLatestRun(feedKey string) (*Run, error) {
	row := r.db.QueryRow(`
		SELECT id, feed_key, feed_type, status, failure_kind, error,
		       item_count, updated_count, bytes, output_path, started_at, finished_at
		FROM runs
		WHERE feed_key = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, feedKey)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

func (r *runRepository) GetRunStats() (RunStats, error) {
	var stats RunStats
	err := r.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM runs
	`, RunStatusSuccess, RunStatusFailed).Scan(&stats.Total, &stats.Succeeded, &stats.Failed)
	if err != nil {
		return RunStats{}, fmt.Errorf("failed to get run stats: %w", err)
	}
	return stats, nil
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.FeedKey, &run.FeedType, &run.Status, &run.FailureKind, &run.Error,
		&run.ItemCount, &run.UpdatedCount, &run.Bytes, &run.OutputPath, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
