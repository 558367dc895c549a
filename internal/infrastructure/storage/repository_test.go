package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"

	"NewsStream/internal/domain"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()

	ctx := context.Background()
	repo, err := Open(ctx, DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	if err := repo.Ensure(ctx); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	return repo
}

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func TestEnsureIsIdempotent(t *testing.T) {
	repo := openTestRepository(t)

	if err := repo.Ensure(context.Background()); err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}

	var name string
	err := repo.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='read_history'").Scan(&name)
	if err != nil {
		t.Fatalf("read_history table not created: %v", err)
	}
}

func TestInsertItemsSkipsKnownLinks(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	n, err := repo.InsertItems(ctx, []domain.Item{
		{Link: "a", Source: "one", PublishedAt: at(10)},
		{Link: "b", Source: "one", PublishedAt: at(15)},
		{Link: "a", Source: "three", PublishedAt: at(20)},
		{Link: "unresolved"},
	})
	if err != nil {
		t.Fatalf("InsertItems failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted, got %d", n)
	}

	n, err = repo.InsertItems(ctx, []domain.Item{
		{Link: "a", PublishedAt: at(99)},
		{Link: "c", PublishedAt: at(30)},
	})
	if err != nil {
		t.Fatalf("second InsertItems failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only c to be inserted, got %d", n)
	}

	var count int
	if err := repo.db.QueryRow("SELECT COUNT(*) FROM news_links").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}

	var millis int64
	var source string
	if err := repo.db.QueryRow("SELECT published_at, source FROM news_links WHERE link = 'a'").Scan(&millis, &source); err != nil {
		t.Fatalf("select a: %v", err)
	}
	if millis != at(10).UnixMilli() || source != "one" {
		t.Fatalf("stored row for a was modified: %d %s", millis, source)
	}
}

func TestInsertItemsEmptyBatch(t *testing.T) {
	repo := openTestRepository(t)

	n, err := repo.InsertItems(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got %d, %v", n, err)
	}
}

func TestInsertItemsLargeBatch(t *testing.T) {
	repo := openTestRepository(t)

	items := make([]domain.Item, 0, batchSize*2+7)
	for i := 0; i < cap(items); i++ {
		items = append(items, domain.Item{Link: fmt.Sprintf("https://news.example/%d", i), PublishedAt: at(int64(i + 1))})
	}

	n, err := repo.InsertItems(context.Background(), items)
	if err != nil {
		t.Fatalf("InsertItems failed: %v", err)
	}
	if n != len(items) {
		t.Fatalf("expected %d inserted, got %d", len(items), n)
	}
}

func TestSeenAndKnownLinks(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	if _, err := repo.InsertItems(ctx, []domain.Item{{Link: "a", PublishedAt: at(1)}, {Link: "b", PublishedAt: at(2)}}); err != nil {
		t.Fatalf("InsertItems failed: %v", err)
	}

	ok, err := repo.Seen(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("expected a to be seen, got %v, %v", ok, err)
	}
	ok, err = repo.Seen(ctx, "zzz")
	if err != nil || ok {
		t.Fatalf("expected zzz to be unseen, got %v, %v", ok, err)
	}

	known, err := repo.KnownLinks(ctx, []string{"a", "x", "b"})
	if err != nil {
		t.Fatalf("KnownLinks failed: %v", err)
	}
	if len(known) != 2 || !known["a"] || !known["b"] {
		t.Fatalf("unexpected known set: %v", known)
	}

	known, err = repo.KnownLinks(ctx, nil)
	if err != nil || len(known) != 0 {
		t.Fatalf("expected empty result, got %v, %v", known, err)
	}
}

func TestLatestUnseenOrdersByTimestampThenLink(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	if _, err := repo.InsertItems(ctx, []domain.Item{
		{Link: "x", Title: "X", Source: "s", PublishedAt: at(5)},
		{Link: "y", Title: "Y", Source: "s", PublishedAt: at(9)},
		{Link: "z", Title: "Z", Source: "s", PublishedAt: at(9)},
	}); err != nil {
		t.Fatalf("InsertItems failed: %v", err)
	}

	consumer := domain.ConsumerID("42")
	var order []string
	for {
		item, ok, err := repo.LatestUnseen(ctx, consumer)
		if err != nil {
			t.Fatalf("LatestUnseen failed: %v", err)
		}
		if !ok {
			break
		}
		again, _, _ := repo.LatestUnseen(ctx, consumer)
		if again.Link != item.Link {
			t.Fatalf("unstable selection: %s then %s", item.Link, again.Link)
		}
		recorded, err := repo.RecordDelivery(ctx, consumer, item.Link)
		if err != nil || !recorded {
			t.Fatalf("RecordDelivery(%s) = %v, %v", item.Link, recorded, err)
		}
		order = append(order, item.Link)
	}

	if got := strings.Join(order, ","); got != "z,y,x" {
		t.Fatalf("unexpected delivery order: %s", got)
	}

	item, ok, err := repo.LatestUnseen(ctx, "other")
	if err != nil || !ok || item.Link != "z" || item.Title != "Z" || !item.PublishedAt.Equal(at(9)) {
		t.Fatalf("history leaked across consumers: %+v %v %v", item, ok, err)
	}
}

func TestLatestUnseenReturnsStoredFields(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	want := domain.Item{Link: "https://news.example/a", Title: "Budget", Summary: "Plan for 2027.", Source: "agency", PublishedAt: at(1700000000)}
	if _, err := repo.InsertItems(ctx, []domain.Item{want}); err != nil {
		t.Fatalf("InsertItems failed: %v", err)
	}

	got, ok, err := repo.LatestUnseen(ctx, "42")
	if err != nil || !ok {
		t.Fatalf("LatestUnseen: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("LatestUnseen = %+v, want %+v", got, want)
	}
}

func TestRecordDeliveryRejectsDuplicates(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.RecordDelivery(ctx, "7", "link")
			if err != nil {
				t.Errorf("RecordDelivery failed: %v", err)
				return
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one recorded delivery, got %d", wins)
	}

	deliveries, err := repo.Deliveries(ctx, "7", 0)
	if err != nil {
		t.Fatalf("Deliveries failed: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].Link != "link" || deliveries[0].Consumer != "7" {
		t.Fatalf("unexpected history: %+v", deliveries)
	}
}

func TestDeliveriesMostRecentFirst(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	clock := at(100)
	repo.now = func() time.Time { return clock }
	for _, link := range []string{"first", "second", "third"} {
		if _, err := repo.RecordDelivery(ctx, "c", link); err != nil {
			t.Fatalf("RecordDelivery failed: %v", err)
		}
		clock = clock.Add(time.Minute)
	}

	deliveries, err := repo.Deliveries(ctx, "c", 2)
	if err != nil {
		t.Fatalf("Deliveries failed: %v", err)
	}
	if len(deliveries) != 2 || deliveries[0].Link != "third" || deliveries[1].Link != "second" {
		t.Fatalf("unexpected history: %+v", deliveries)
	}
	if !deliveries[0].DeliveredAt.Equal(at(220)) {
		t.Fatalf("unexpected delivered_at: %v", deliveries[0].DeliveredAt)
	}
}

func TestClosedStoreReturnsErrors(t *testing.T) {
	repo := openTestRepository(t)
	_ = repo.Close()

	if _, _, err := repo.LatestUnseen(context.Background(), "1"); err == nil {
		t.Fatal("expected error on closed store")
	}
	if _, err := repo.RecordDelivery(context.Background(), "1", "a"); err == nil {
		t.Fatal("expected error on closed store")
	}
}

func TestPlaceholderFormatPerDriver(t *testing.T) {
	t.Parallel()

	cases := []struct {
		driver string
		want   []string
	}{
		{driver: DriverPostgres, want: []string{"h.consumer_id = $1", "n.source IN ($2,$3)"}},
		{driver: DriverSQLite, want: []string{"h.consumer_id = ?", "n.source IN (?,?)"}},
	}

	for _, tc := range cases {
		repo := New(nil, tc.driver)
		query, args, err := repo.builder.
			Select("n.link").
			From(itemsTable+" n").
			Where("NOT EXISTS (SELECT 1 FROM "+historyTable+" h WHERE h.consumer_id = ? AND h.link = n.link)", "42").
			Where(sq.Eq{"n.source": []string{"a", "b"}}).
			ToSql()
		if err != nil {
			t.Fatalf("%s: ToSql failed: %v", tc.driver, err)
		}
		for _, want := range tc.want {
			if !strings.Contains(query, want) {
				t.Fatalf("%s: expected %q in %s", tc.driver, want, query)
			}
		}
		if len(args) != 3 {
			t.Fatalf("%s: unexpected args: %v", tc.driver, args)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), "mysql", "dsn"); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	if _, err := Open(context.Background(), DriverSQLite, ""); err == nil {
		t.Fatal("expected empty dsn error")
	}
}
