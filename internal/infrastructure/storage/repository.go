package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"NewsStream/internal/domain"
	"NewsStream/internal/ports"
)

const (
	itemsTable   = "news_links"
	historyTable = "read_history"

	// batchSize keeps multi-row statements under SQLite's variable limit.
	batchSize = 500
)

// Repository persists seen items and delivery history in Postgres or SQLite.
type Repository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	now     func() time.Time
}

var (
	_ ports.ItemRepository    = (*Repository)(nil)
	_ ports.HistoryRepository = (*Repository)(nil)
)

// New wraps an open sql.DB; driver selects the placeholder format.
func New(db *sql.DB, driver string) *Repository {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &Repository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
		now:     time.Now,
	}
}

// Close releases the connection pool.
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Seen reports whether link was ever stored.
func (r *Repository) Seen(ctx context.Context, link string) (bool, error) {
	query, args, err := r.builder.
		Select("1").
		From(itemsTable).
		Where(sq.Eq{"link": link}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build seen query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen: %w", err)
	}
	return true, nil
}

// KnownLinks returns the subset of links that already exist in storage.
func (r *Repository) KnownLinks(ctx context.Context, links []string) (map[string]bool, error) {
	result := make(map[string]bool)
	for start := 0; start < len(links); start += batchSize {
		end := min(start+batchSize, len(links))
		if err := r.collectKnown(ctx, links[start:end], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *Repository) collectKnown(ctx context.Context, links []string, into map[string]bool) error {
	query, args, err := r.builder.
		Select("link").
		From(itemsTable).
		Where(sq.Eq{"link": links}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build known query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query known: %w", err)
	}

	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan link: %w", err)
		}
		into[link] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return fmt.Errorf("close rows: %w", closeErr)
	}

	return nil
}

// InsertItems commits the batch in one transaction. Links already present,
// in storage or earlier in the batch, are skipped and never updated.
func (r *Repository) InsertItems(ctx context.Context, items []domain.Item) (int, error) {
	pending := uniqueResolved(items)
	if len(pending) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))

		stmt := r.builder.
			Insert(itemsTable).
			Columns("link", "title", "summary", "source", "published_at").
			Suffix("ON CONFLICT (link) DO NOTHING")
		for _, item := range pending[start:end] {
			stmt = stmt.Values(item.Link, item.Title, item.Summary, item.Source, item.PublishedAt.UnixMilli())
		}

		query, args, err := stmt.ToSql()
		if err != nil {
			return 0, fmt.Errorf("build insert: %w", err)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert items: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return inserted, nil
}

// LatestUnseen returns the newest item with no delivery record for consumer.
// Equal timestamps are ordered by link so repeated reads agree.
func (r *Repository) LatestUnseen(ctx context.Context, consumer domain.ConsumerID) (domain.Item, bool, error) {
	query, args, err := r.builder.
		Select("n.link", "n.title", "n.summary", "n.source", "n.published_at").
		From(itemsTable+" n").
		Where("NOT EXISTS (SELECT 1 FROM "+historyTable+" h WHERE h.consumer_id = ? AND h.link = n.link)", string(consumer)).
		OrderBy("n.published_at DESC", "n.link DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.Item{}, false, fmt.Errorf("build latest query: %w", err)
	}

	var (
		item   domain.Item
		millis int64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&item.Link, &item.Title, &item.Summary, &item.Source, &millis)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, false, nil
	}
	if err != nil {
		return domain.Item{}, false, fmt.Errorf("query latest: %w", err)
	}

	item.PublishedAt = time.UnixMilli(millis).UTC()
	return item, true, nil
}

// RecordDelivery inserts the (consumer, link) pair; false means it existed.
func (r *Repository) RecordDelivery(ctx context.Context, consumer domain.ConsumerID, link string) (bool, error) {
	query, args, err := r.builder.
		Insert(historyTable).
		Columns("consumer_id", "link", "delivered_at").
		Values(string(consumer), link, r.now().UnixMilli()).
		Suffix("ON CONFLICT (consumer_id, link) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build history insert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert history: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Deliveries lists a consumer's history, most recent first.
func (r *Repository) Deliveries(ctx context.Context, consumer domain.ConsumerID, limit uint64) ([]domain.Delivery, error) {
	stmt := r.builder.
		Select("link", "delivered_at").
		From(historyTable).
		Where(sq.Eq{"consumer_id": string(consumer)}).
		OrderBy("delivered_at DESC", "link")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.Delivery
	for rows.Next() {
		var (
			link   string
			millis int64
		)
		if err := rows.Scan(&link, &millis); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, domain.Delivery{
			Consumer:    consumer,
			Link:        link,
			DeliveredAt: time.UnixMilli(millis).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// uniqueResolved drops items without a timestamp and repeated links,
// keeping the first occurrence.
func uniqueResolved(items []domain.Item) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Link == "" || !item.HasTimestamp() {
			continue
		}
		if _, dup := seen[item.Link]; dup {
			continue
		}
		seen[item.Link] = struct{}{}
		out = append(out, item)
	}
	return out
}
