package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"NewsStream/internal/domain"
	"NewsStream/internal/ports"
)

// DefaultRefreshWindow is the minimum interval between collect passes.
const DefaultRefreshWindow = 5 * time.Minute

// SelectorDeps wires stores and the collector into a selector.
type SelectorDeps struct {
	Collector     ports.Collector
	Items         ports.ItemRepository
	History       ports.HistoryRepository
	RefreshWindow time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

// Selector hands each consumer the newest item it has not received yet.
type Selector struct {
	collector ports.Collector
	items     ports.ItemRepository
	history   ports.HistoryRepository
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time

	refresh     singleflight.Group
	mu          sync.Mutex
	lastRefresh time.Time

	locks consumerLocks
}

var _ ports.NextItemProvider = (*Selector)(nil)

// NewSelector constructs the delivery component.
func NewSelector(deps SelectorDeps) *Selector {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Selector{
		collector: deps.Collector,
		items:     deps.Items,
		history:   deps.History,
		window:    durationOr(deps.RefreshWindow, DefaultRefreshWindow),
		logger:    logger,
		now:       now,
	}
}

// NextItem refreshes the item pool when stale, then selects and records the
// newest unseen item for consumer. ok is false when nothing is left.
// Storage failures wrap domain.ErrStoreUnavailable.
func (s *Selector) NextItem(ctx context.Context, consumer domain.ConsumerID) (domain.Item, bool, error) {
	if err := s.refreshIfStale(ctx); err != nil {
		s.logger.Error("refresh failed", "consumer", consumer, "error", err)
		return domain.Item{}, false, fmt.Errorf("%w: refresh: %w", domain.ErrStoreUnavailable, err)
	}

	unlock := s.locks.lock(consumer)
	defer unlock()

	item, ok, err := s.items.LatestUnseen(ctx, consumer)
	if err != nil {
		s.logger.Error("select item failed", "consumer", consumer, "error", err)
		return domain.Item{}, false, fmt.Errorf("%w: select item: %w", domain.ErrStoreUnavailable, err)
	}
	if !ok {
		s.logger.Debug("nothing new", "consumer", consumer)
		return domain.Item{}, false, nil
	}

	recorded, err := s.history.RecordDelivery(ctx, consumer, item.Link)
	if err != nil {
		s.logger.Error("record delivery failed", "consumer", consumer, "link", item.Link, "error", err)
		return domain.Item{}, false, fmt.Errorf("%w: record delivery: %w", domain.ErrStoreUnavailable, err)
	}
	if !recorded {
		// Another process delivered this link to the same consumer first.
		s.logger.Info("delivery lost race", "consumer", consumer, "link", item.Link)
		return domain.Item{}, false, nil
	}

	s.logger.Info("item delivered", "consumer", consumer, "link", item.Link)
	return item, true, nil
}

// LastRefresh returns when the last successful pass finished; zero if never.
func (s *Selector) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}

func (s *Selector) stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh.IsZero() || s.now().Sub(s.lastRefresh) > s.window
}

// refreshIfStale runs at most one collect pass at a time; callers arriving
// while it runs wait for it instead of starting their own.
func (s *Selector) refreshIfStale(ctx context.Context) error {
	if s.collector == nil || !s.stale() {
		return nil
	}

	_, err, _ := s.refresh.Do("refresh", func() (any, error) {
		if !s.stale() {
			return nil, nil
		}
		if err := s.collector.Collect(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.lastRefresh = s.now()
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

// consumerLocks serialises select-and-record per consumer inside the process.
type consumerLocks struct {
	mu    sync.Mutex
	locks map[domain.ConsumerID]*consumerLock
}

type consumerLock struct {
	mu   sync.Mutex
	refs int
}

func (l *consumerLocks) lock(id domain.ConsumerID) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[domain.ConsumerID]*consumerLock{}
	}
	entry, ok := l.locks[id]
	if !ok {
		entry = &consumerLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
