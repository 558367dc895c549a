package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsStream/internal/domain"
	"NewsStream/internal/scanner"
)

// KindGovNews identifies the government press-release listing adapter.
const KindGovNews = "govnews"

const (
	defaultGovNewsURL   = "https://edu.gov.ru/press/news/"
	defaultGovNewsRoot  = "div#content"
	defaultGovNewsEntry = "div.row.mb2"
	defaultGovNewsDate  = "div.date"
)

// GovNewsScanner reads a press-news listing whose entries carry no dates;
// every timestamp costs one request to the article page.
type GovNewsScanner struct {
	name     string
	listURL  *url.URL
	root     string
	entry    string
	dateSel  string
	location *time.Location
	pages    *pageFetcher
	logger   *slog.Logger
}

var _ scanner.Source = (*GovNewsScanner)(nil)

// NewGovNewsScanner builds the adapter; selectors may be overridden through
// the "root", "entry" and "date" site options.
func NewGovNewsScanner(site scanner.Site, opts HTTPOptions, logger *slog.Logger) (*GovNewsScanner, error) {
	raw := site.URL
	if raw == "" {
		raw = defaultGovNewsURL
	}
	listURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid listing url %s: %w", raw, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &GovNewsScanner{
		name:     site.Name,
		listURL:  listURL,
		root:     option(site, "root", defaultGovNewsRoot),
		entry:    option(site, "entry", defaultGovNewsEntry),
		dateSel:  option(site, "date", defaultGovNewsDate),
		location: moscow,
		pages:    newPageFetcher(opts),
		logger:   logger,
	}, nil
}

func govNewsFactory(opts HTTPOptions) scanner.Factory {
	return func(site scanner.Site, logger *slog.Logger) (scanner.Source, error) {
		return NewGovNewsScanner(site, opts, logger)
	}
}

// Name identifies the site.
func (g *GovNewsScanner) Name() string {
	return g.name
}

// FetchRecent lists the current page of announcements without timestamps.
func (g *GovNewsScanner) FetchRecent(ctx context.Context) ([]domain.Item, error) {
	doc, err := g.pages.document(ctx, g.listURL.String())
	if err != nil {
		return nil, err
	}

	content := doc.Find(g.root).First()
	if content.Length() == 0 {
		return nil, fmt.Errorf("listing %s has no %s block", g.listURL, g.root)
	}

	var items []domain.Item
	seen := map[string]struct{}{}
	content.Find(g.entry).Each(func(_ int, entry *goquery.Selection) {
		ref := entry.Find("a[href]").First()
		href, _ := ref.Attr("href")
		link, err := resolveLink(g.listURL, href)
		if err != nil {
			g.logger.Debug("skip entry", "error", err)
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		items = append(items, domain.Item{
			Link:   link,
			Title:  collapseSpace(ref.Text()),
			Source: g.name,
		})
	})

	g.logger.Debug("listing parsed", "items", len(items))
	return items, nil
}

// FetchTimestamp loads the article page and reads its date block.
func (g *GovNewsScanner) FetchTimestamp(ctx context.Context, item domain.Item) (time.Time, error) {
	doc, err := g.pages.document(ctx, item.Link)
	if err != nil {
		return time.Time{}, err
	}

	text := strings.TrimSpace(doc.Find(g.root).Find(g.dateSel).First().Text())
	if text == "" {
		return time.Time{}, fmt.Errorf("no %s on %s", g.dateSel, item.Link)
	}

	published, err := parseRussianDate(text, g.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("article %s: %w", item.Link, err)
	}
	return published, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
