package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"NewsStream/internal/domain"
)

var errBoom = errors.New("boom")

// memStore is an in-memory ItemRepository and HistoryRepository.
type memStore struct {
	mu      sync.Mutex
	items   map[string]domain.Item
	history map[domain.ConsumerID]map[string]bool

	inserts    int
	failKnown  error
	failInsert error
	failLatest error
	failRecord error
	// recordConflict makes RecordDelivery report an existing pair.
	recordConflict bool
}

func newMemStore(items ...domain.Item) *memStore {
	s := &memStore{
		items:   map[string]domain.Item{},
		history: map[domain.ConsumerID]map[string]bool{},
	}
	for _, it := range items {
		s.items[it.Link] = it
	}
	return s
}

func (s *memStore) Seen(_ context.Context, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[link]
	return ok, nil
}

func (s *memStore) KnownLinks(_ context.Context, links []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failKnown != nil {
		return nil, s.failKnown
	}
	out := map[string]bool{}
	for _, l := range links {
		if _, ok := s.items[l]; ok {
			out[l] = true
		}
	}
	return out, nil
}

func (s *memStore) InsertItems(_ context.Context, items []domain.Item) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return 0, s.failInsert
	}
	s.inserts++
	n := 0
	for _, it := range items {
		if _, ok := s.items[it.Link]; ok || !it.HasTimestamp() {
			continue
		}
		s.items[it.Link] = it
		n++
	}
	return n, nil
}

func (s *memStore) LatestUnseen(_ context.Context, consumer domain.ConsumerID) (domain.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLatest != nil {
		return domain.Item{}, false, s.failLatest
	}
	var candidates []domain.Item
	for _, it := range s.items {
		if !s.history[consumer][it.Link] {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		return domain.Item{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].PublishedAt.Equal(candidates[j].PublishedAt) {
			return candidates[i].PublishedAt.After(candidates[j].PublishedAt)
		}
		return candidates[i].Link > candidates[j].Link
	})
	return candidates[0], true, nil
}

func (s *memStore) RecordDelivery(_ context.Context, consumer domain.ConsumerID, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRecord != nil {
		return false, s.failRecord
	}
	if s.recordConflict {
		return false, nil
	}
	if s.history[consumer] == nil {
		s.history[consumer] = map[string]bool{}
	}
	if s.history[consumer][link] {
		return false, nil
	}
	s.history[consumer][link] = true
	return true, nil
}

func (s *memStore) snapshot() map[string]domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Item, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// fakeSource serves a fixed listing and a timestamp table.
type fakeSource struct {
	name       string
	listing    []domain.Item
	listErr    error
	timestamps map[string]time.Time
	tsErr      map[string]error
	delay      time.Duration
	block      bool
	panics     bool

	recentCalls atomic.Int32
	tsCalls     atomic.Int32
	inFlight    *atomic.Int32
	maxInFlight *atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) enter() func() {
	if f.inFlight == nil {
		return func() {}
	}
	n := f.inFlight.Add(1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeSource) FetchRecent(ctx context.Context) ([]domain.Item, error) {
	f.recentCalls.Add(1)
	defer f.enter()()

	if f.panics {
		panic("listing exploded")
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Item, len(f.listing))
	copy(out, f.listing)
	return out, nil
}

func (f *fakeSource) FetchTimestamp(_ context.Context, item domain.Item) (time.Time, error) {
	f.tsCalls.Add(1)
	defer f.enter()()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := f.tsErr[item.Link]; err != nil {
		return time.Time{}, err
	}
	ts, ok := f.timestamps[item.Link]
	if !ok {
		return time.Time{}, errors.New("unknown link")
	}
	return ts, nil
}

// countingCollector counts passes and can block until released.
type countingCollector struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
	started chan struct{}
	onRun   func()
}

func (c *countingCollector) Collect(ctx context.Context) error {
	c.calls.Add(1)
	if c.started != nil {
		select {
		case c.started <- struct{}{}:
		default:
		}
	}
	if c.release != nil {
		<-c.release
	}
	if c.onRun != nil {
		c.onRun()
	}
	return c.err
}

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
