package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ FeedRepository = (*feedRepository)(nil)

type feedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) FeedRepository {
	return &feedRepository{db: db}
}

// UpsertFeed registers a configured feed and reports whether its URL changed
// since the last registration.
func (r *feedRepository) UpsertFeed(feedKey, feedType, feedURL string) (bool, error) {
	existing, err := r.GetFeed(feedKey)
	if err != nil {
		return false, fmt.Errorf("failed to check existing feed: %w", err)
	}

	now := time.Now().UTC()
	if existing == nil {
		_, err = r.db.Exec(`
			INSERT INTO feeds (feed_key, feed_type, feed_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, feedKey, feedType, feedURL, now, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert feed: %w", err)
		}
		return false, nil
	}

	_, err = r.db.Exec(`
		UPDATE feeds
		SET feed_type = ?, feed_url = ?, updated_at = ?
		WHERE feed_key = ?
	`, feedType, feedURL, now, feedKey)
	if err != nil {
		return false, fmt.Errorf("failed to update feed: %w", err)
	}

	return existing.URL != feedURL, nil
}

func (r *feedRepository) UpdateLastRun(feedKey, status string, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET last_run_at = ?, last_status = ?, updated_at = ?
		WHERE feed_key = ?
	`, at.UTC(), status, time.Now().UTC(), feedKey)
	if err != nil {
		return fmt.Errorf("failed to update last run: %w", err)
	}
	return nil
}

func (r *feedRepository) GetFeed(feedKey string) (*Feed, error) {
	row := r.db.QueryRow(`
		SELECT feed_key, feed_type, feed_url, last_run_at, last_status, created_at, updated_at
		FROM feeds
		WHERE feed_key = ?
	`, feedKey)

	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return feed, nil
}

func (r *feedRepository) GetFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`
		SELECT feed_key, feed_type, feed_url, last_run_at, last_status, created_at, updated_at
		FROM feeds
		ORDER BY feed_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, *feed)
	}
	return feeds, rows.Err()
}

func (r *feedRepository) GetFeedCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM feeds`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count feeds: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*Feed, error) {
	var feed Feed
	var lastRunAt sql.NullTime
	if err := row.Scan(&feed.Key, &feed.Type, &feed.URL, &lastRunAt, &feed.LastStatus, &feed.CreatedAt, &feed.UpdatedAt); err != nil {
		return nil, err
	}
	if lastRunAt.Valid {
		t := lastRunAt.Time
		feed.LastRunAt = &t
	}
	return &feed, nil
}
