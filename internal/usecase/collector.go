package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsStream/internal/domain"
	"NewsStream/internal/ports"
	"NewsStream/internal/scanner"
)

const (
	// MaxConcurrency bounds each fan-out phase of a pass.
	MaxConcurrency     = 10
	defaultCallTimeout = 20 * time.Second
)

// CollectorDeps wires sources and the item store into a collector.
type CollectorDeps struct {
	Sources                 []scanner.Source
	Items                   ports.ItemRepository
	Logger                  *slog.Logger
	MaxFetchConcurrency     int
	MaxTimestampConcurrency int
	CallTimeout             time.Duration
}

// Collector performs orchestration passes: list every source, resolve missing
// timestamps and append new links to the item store.
type Collector struct {
	sources      []scanner.Source
	items        ports.ItemRepository
	logger       *slog.Logger
	fetchLimit   int
	resolveLimit int
	callTimeout  time.Duration
}

var _ ports.Collector = (*Collector)(nil)

// PassStats summarises one pass.
type PassStats struct {
	Sources       int
	FailedSources int
	Listed        int
	Known         int
	Resolved      int
	Dropped       int
	Inserted      int
}

// NewCollector constructs the orchestration component.
func NewCollector(deps CollectorDeps) *Collector {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{
		sources:      deps.Sources,
		items:        deps.Items,
		logger:       logger,
		fetchLimit:   concurrencyLimit(deps.MaxFetchConcurrency),
		resolveLimit: concurrencyLimit(deps.MaxTimestampConcurrency),
		callTimeout:  durationOr(deps.CallTimeout, defaultCallTimeout),
	}
}

// Collect runs one pass; only item store failures are returned.
func (c *Collector) Collect(ctx context.Context) error {
	_, err := c.Run(ctx)
	return err
}

type pending struct {
	item   domain.Item
	source scanner.Source
}

// Run executes a pass and reports what happened.
func (c *Collector) Run(ctx context.Context) (PassStats, error) {
	started := time.Now()
	stats := PassStats{Sources: len(c.sources)}
	if c.items == nil {
		return stats, fmt.Errorf("item repository is not configured")
	}

	listings := c.fetchListings(ctx, &stats)
	candidates := mergeListings(c.sources, listings)
	stats.Listed = len(candidates)

	links := make([]string, len(candidates))
	for i, p := range candidates {
		links[i] = p.item.Link
	}
	known, err := c.items.KnownLinks(ctx, links)
	if err != nil {
		return stats, fmt.Errorf("load known links: %w", err)
	}

	var ready, unresolved []pending
	for _, p := range candidates {
		switch {
		case known[p.item.Link]:
			stats.Known++
		case p.item.HasTimestamp():
			ready = append(ready, p)
		default:
			unresolved = append(unresolved, p)
		}
	}

	resolved := c.resolveTimestamps(ctx, unresolved)
	stats.Resolved = len(resolved)
	stats.Dropped = len(unresolved) - len(resolved)

	batch := make([]domain.Item, 0, len(ready)+len(resolved))
	for _, p := range ready {
		batch = append(batch, p.item)
	}
	batch = append(batch, resolved...)

	if len(batch) > 0 {
		stats.Inserted, err = c.items.InsertItems(ctx, batch)
		if err != nil {
			return stats, fmt.Errorf("insert batch: %w", err)
		}
	}

	c.logger.Info("collect pass finished",
		"sources", stats.Sources,
		"failed_sources", stats.FailedSources,
		"listed", stats.Listed,
		"known", stats.Known,
		"resolved", stats.Resolved,
		"dropped", stats.Dropped,
		"inserted", stats.Inserted,
		"elapsed", time.Since(started))
	return stats, nil
}

// fetchListings returns one listing per source, nil for failed sources.
func (c *Collector) fetchListings(ctx context.Context, stats *PassStats) [][]domain.Item {
	listings := make([][]domain.Item, len(c.sources))
	var (
		mu     sync.Mutex
		failed int
	)

	var g errgroup.Group
	g.SetLimit(c.fetchLimit)
	for i, src := range c.sources {
		g.Go(func() error {
			items, err := c.callRecent(ctx, src)
			if err != nil {
				c.logger.Warn("source listing failed", "source", src.Name(), "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			listings[i] = items
			return nil
		})
	}
	_ = g.Wait()

	stats.FailedSources = failed
	return listings
}

// resolveTimestamps fills in missing publish times; failed items are dropped.
func (c *Collector) resolveTimestamps(ctx context.Context, unresolved []pending) []domain.Item {
	if len(unresolved) == 0 {
		return nil
	}

	results := make([]domain.Item, len(unresolved))

	var g errgroup.Group
	g.SetLimit(min(c.resolveLimit, len(unresolved)))
	for i, p := range unresolved {
		g.Go(func() error {
			ts, err := c.callTimestamp(ctx, p)
			if err != nil {
				c.logger.Warn("timestamp resolution failed",
					"source", p.source.Name(), "link", p.item.Link, "error", err)
				return nil
			}
			if ts.IsZero() {
				c.logger.Warn("timestamp resolution returned nothing",
					"source", p.source.Name(), "link", p.item.Link)
				return nil
			}
			item := p.item
			item.PublishedAt = ts.UTC()
			results[i] = item
			return nil
		})
	}
	_ = g.Wait()

	out := results[:0]
	for _, item := range results {
		if item.HasTimestamp() {
			out = append(out, item)
		}
	}
	return out
}

func (c *Collector) callRecent(ctx context.Context, src scanner.Source) (items []domain.Item, err error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	defer recoverInto(&err)

	return src.FetchRecent(callCtx)
}

func (c *Collector) callTimestamp(ctx context.Context, p pending) (ts time.Time, err error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	defer recoverInto(&err)

	return p.source.FetchTimestamp(callCtx, p.item)
}

// mergeListings flattens listings in source order; the first source to list
// a link owns it for this pass.
func mergeListings(sources []scanner.Source, listings [][]domain.Item) []pending {
	var out []pending
	seen := map[string]struct{}{}
	for i, items := range listings {
		for _, item := range items {
			if item.Link == "" {
				continue
			}
			if _, dup := seen[item.Link]; dup {
				continue
			}
			seen[item.Link] = struct{}{}
			if item.Source == "" {
				item.Source = sources[i].Name()
			}
			out = append(out, pending{item: item, source: sources[i]})
		}
	}
	return out
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("adapter panic: %v", r)
	}
}

// concurrencyLimit maps non-positive values to MaxConcurrency and caps the rest.
func concurrencyLimit(v int) int {
	if v <= 0 || v > MaxConcurrency {
		return MaxConcurrency
	}
	return v
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
