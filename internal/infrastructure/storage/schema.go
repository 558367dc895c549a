package storage

import (
	"context"
	"fmt"
)

// Timestamps are unix milliseconds so both dialects sort and scan them alike.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS news_links (
    link TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    published_at BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_news_links_published ON news_links (published_at DESC, link DESC)`,
	`CREATE TABLE IF NOT EXISTS read_history (
    consumer_id TEXT NOT NULL,
    link TEXT NOT NULL,
    delivered_at BIGINT NOT NULL,
    PRIMARY KEY (consumer_id, link)
)`,
	`CREATE INDEX IF NOT EXISTS idx_read_history_delivered ON read_history (consumer_id, delivered_at DESC)`,
}

// Ensure creates tables and indexes when missing.
func (r *Repository) Ensure(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
