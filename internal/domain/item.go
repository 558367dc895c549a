package domain

import (
	"errors"
	"time"
)

// ErrStoreUnavailable marks failures of the durable stores that a caller
// must report as "temporarily unavailable" instead of "no new item".
var ErrStoreUnavailable = errors.New("store unavailable")

// ConsumerID identifies a recipient (a chat) tracked only by delivery history.
type ConsumerID string

// Item is a single news entry identified by its link.
// Title and Summary are plain text. A zero PublishedAt means the timestamp
// is not resolved yet.
type Item struct {
	Link        string
	Title       string
	Summary     string
	Source      string
	PublishedAt time.Time
}

// HasTimestamp reports whether the publish time was resolved.
func (i Item) HasTimestamp() bool {
	return !i.PublishedAt.IsZero()
}

// Delivery is a history record: Link was handed to Consumer.
type Delivery struct {
	Consumer    ConsumerID
	Link        string
	DeliveredAt time.Time
}
