package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"NewsStream/internal/domain"
	"NewsStream/internal/scanner"
)

// KindRSS identifies the RSS/Atom/JSON feed adapter.
const KindRSS = "rss"

// Item pages are searched in this order when a feed entry carries no date.
var pageTimeSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="article:published_time"]`, "content"},
	{`meta[itemprop="datePublished"]`, "content"},
	{`meta[name="date"]`, "content"},
	{`time[datetime]`, "datetime"},
}

// RSSScanner reads feeds that normally embed publish dates.
type RSSScanner struct {
	name    string
	feedURL *url.URL
	pages   *pageFetcher
	summary *summarizer
	logger  *slog.Logger
}

var _ scanner.Source = (*RSSScanner)(nil)

// NewRSSScanner builds the adapter for site.URL.
func NewRSSScanner(site scanner.Site, opts HTTPOptions, logger *slog.Logger) (*RSSScanner, error) {
	if strings.TrimSpace(site.URL) == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	feedURL, err := url.Parse(site.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url %s: %w", site.URL, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &RSSScanner{
		name:    site.Name,
		feedURL: feedURL,
		pages:   newPageFetcher(opts),
		summary: newSummarizer(),
		logger:  logger,
	}, nil
}

func rssFactory(opts HTTPOptions) scanner.Factory {
	return func(site scanner.Site, logger *slog.Logger) (scanner.Source, error) {
		return NewRSSScanner(site, opts, logger)
	}
}

// Name identifies the site.
func (r *RSSScanner) Name() string {
	return r.name
}

// FetchRecent parses the feed; entries without published or updated dates
// are returned unresolved.
func (r *RSSScanner) FetchRecent(ctx context.Context) ([]domain.Item, error) {
	resp, err := r.pages.get(ctx, r.feedURL.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", r.feedURL, err)
	}

	items := make([]domain.Item, 0, len(feed.Items))
	seen := map[string]struct{}{}
	for _, entry := range feed.Items {
		link, err := resolveLink(r.feedURL, entry.Link)
		if err != nil {
			r.logger.Debug("skip entry", "title", entry.Title, "error", err)
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}

		item := domain.Item{
			Link:    link,
			Title:   collapseSpace(entry.Title),
			Summary: r.summary.text(entry.Description),
			Source:  r.name,
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			item.PublishedAt = entry.UpdatedParsed.UTC()
		}
		items = append(items, item)
	}

	return items, nil
}

// FetchTimestamp reads publish metadata from the item page.
func (r *RSSScanner) FetchTimestamp(ctx context.Context, item domain.Item) (time.Time, error) {
	doc, err := r.pages.document(ctx, item.Link)
	if err != nil {
		return time.Time{}, err
	}
	return pageTimestamp(doc, item.Link)
}

func pageTimestamp(doc *goquery.Document, link string) (time.Time, error) {
	for _, candidate := range pageTimeSelectors {
		value, ok := doc.Find(candidate.selector).First().Attr(candidate.attr)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		t, err := parseISOTime(value)
		if err != nil {
			continue
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("no publish time on %s", link)
}
