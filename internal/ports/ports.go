package ports

import (
	"context"

	"NewsStream/internal/domain"
)

// ItemRepository is the append-only record of every link ever observed.
type ItemRepository interface {
	// Seen is the single-link dedup lookup. Collection passes batch their
	// lookups through KnownLinks instead.
	Seen(ctx context.Context, link string) (bool, error)
	KnownLinks(ctx context.Context, links []string) (map[string]bool, error)
	// InsertItems stores the batch atomically, skipping links already present,
	// and returns how many rows were actually added.
	InsertItems(ctx context.Context, items []domain.Item) (int, error)
	// LatestUnseen returns the newest item without a delivery record for consumer.
	LatestUnseen(ctx context.Context, consumer domain.ConsumerID) (domain.Item, bool, error)
}

// HistoryRepository records which items were delivered to which consumer.
type HistoryRepository interface {
	// RecordDelivery returns false when the pair was already recorded.
	RecordDelivery(ctx context.Context, consumer domain.ConsumerID, link string) (bool, error)
}

// Collector runs one orchestration pass over all sources.
type Collector interface {
	Collect(ctx context.Context) error
}

// NextItemProvider is what chat transports call to serve a consumer.
type NextItemProvider interface {
	NextItem(ctx context.Context, consumer domain.ConsumerID) (domain.Item, bool, error)
}

// Messenger sends Markdown replies to a chat.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}
