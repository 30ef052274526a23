// Package store persists the catalog of indexed feeds.
//
// The catalog is bookkeeping next to the search index: per feed, how
// many items have been submitted for indexing and when the last one
// landed. The stats command reads it; the index itself never does.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// FeedStat is one catalog row.
type FeedStat struct {
	URL         string
	Items       int
	LastIndexed time.Time
}

// Catalog is a SQLite-backed record of indexed feeds.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (creating if needed) the catalog database at path.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// The catalog is written by the single index worker; one
	// connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS feeds (
			url          TEXT PRIMARY KEY,
			items        INTEGER NOT NULL DEFAULT 0,
			last_indexed TEXT NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// RecordItems adds n indexed items to a feed's tally.
func (c *Catalog) RecordItems(ctx context.Context, feedURL string, n int) error {
	if feedURL == "" || n == 0 {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO feeds (url, items, last_indexed) VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			items = items + excluded.items,
			last_indexed = excluded.last_indexed`,
		feedURL, n, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record items for %s: %w", feedURL, err)
	}
	return nil
}

// RecordFeedRemoved drops a feed from the catalog.
func (c *Catalog) RecordFeedRemoved(ctx context.Context, feedURL string) error {
	if feedURL == "" {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `DELETE FROM feeds WHERE url = ?`, feedURL)
	if err != nil {
		return fmt.Errorf("failed to remove %s from catalog: %w", feedURL, err)
	}
	return nil
}

// Clear empties the catalog. Called alongside an index reset.
func (c *Catalog) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM feeds`)
	if err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}
	return nil
}

// Feeds returns all catalog rows ordered by URL.
func (c *Catalog) Feeds(ctx context.Context) ([]FeedStat, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT url, items, last_indexed FROM feeds ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	defer rows.Close()

	var stats []FeedStat
	for rows.Next() {
		var s FeedStat
		var ts string
		if err := rows.Scan(&s.URL, &s.Items, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		s.LastIndexed, _ = time.Parse(time.RFC3339, ts)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
