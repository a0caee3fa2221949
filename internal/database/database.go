// Package database keeps a local mirror of listening history so the history
// view works even when the backend is unreachable.
package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"briefplay/models"
)

// completedThreshold is the coverage percentage above which an episode counts
// as finished.
const completedThreshold = 90.0

// DB wraps the sqlite handle. All methods are safe for concurrent use.
type DB struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates the database file (and its directory) if needed and runs the
// schema migration.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[database] opened %s", path)
	return d, nil
}

func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listening_history (
		podcast_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		duration_seconds REAL NOT NULL,
		listen_duration_seconds REAL NOT NULL DEFAULT 0,
		stop_position REAL NOT NULL DEFAULT 0,
		coverage REAL NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		play_count INTEGER NOT NULL DEFAULT 0,
		listened_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_listened_at ON listening_history(listened_at DESC);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// RecordListen upserts the mirror row for one flushed session. Repeat listens
// bump the play count and accumulate listen duration; completion is sticky.
func (d *DB) RecordListen(podcastID, title string, report models.SessionReport) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	completed := 0
	if report.CoveragePercentage >= completedThreshold {
		completed = 1
	}
	_, err := d.db.Exec(`
		INSERT INTO listening_history
			(podcast_id, title, duration_seconds, listen_duration_seconds,
			 stop_position, coverage, completed, play_count, listened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(podcast_id) DO UPDATE SET
			title = excluded.title,
			duration_seconds = excluded.duration_seconds,
			listen_duration_seconds = listening_history.listen_duration_seconds + excluded.listen_duration_seconds,
			stop_position = excluded.stop_position,
			coverage = MAX(listening_history.coverage, excluded.coverage),
			completed = MAX(listening_history.completed, excluded.completed),
			play_count = listening_history.play_count + 1,
			listened_at = excluded.listened_at`,
		podcastID, title, report.TotalDurationSeconds, report.ListenDurationSeconds,
		report.LastPosition, report.CoveragePercentage, completed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record listen for %s: %w", podcastID, err)
	}
	return nil
}

// Recent returns up to limit history rows, newest first.
func (d *DB) Recent(limit int) ([]models.HistoryItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(`
		SELECT podcast_id, title, duration_seconds, listen_duration_seconds,
		       stop_position, completed, play_count, listened_at
		FROM listening_history
		ORDER BY listened_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var items []models.HistoryItem
	for rows.Next() {
		var item models.HistoryItem
		var completed int
		var listenedAt time.Time
		if err := rows.Scan(&item.PodcastID, &item.Title, &item.DurationSeconds,
			&item.ListenDurationSeconds, &item.StopPositionSeconds,
			&completed, &item.PlayCount, &listenedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		item.Completed = completed == 1
		item.ListenedAt = listenedAt.UTC().Format(time.RFC3339)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}
	return items, nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}
