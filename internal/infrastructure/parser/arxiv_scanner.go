package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsStream/internal/domain"
	"NewsStream/internal/scanner"
)

// KindArxiv identifies the arXiv category listing adapter.
const KindArxiv = "arxiv"

const defaultArxivPageSize = 50

// ArxivScanner reads the first page of a category listing.
type ArxivScanner struct {
	name     string
	listURL  *url.URL
	pageSize int
	pages    *pageFetcher
	logger   *slog.Logger
}

var _ scanner.Source = (*ArxivScanner)(nil)

// NewArxivScanner builds the adapter; the "show" option sets the page size.
func NewArxivScanner(site scanner.Site, opts HTTPOptions, logger *slog.Logger) (*ArxivScanner, error) {
	listURL, err := url.Parse(site.URL)
	if err != nil || listURL.Host == "" {
		return nil, fmt.Errorf("invalid category url %q", site.URL)
	}

	pageSize := defaultArxivPageSize
	if raw := option(site, "show", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid show option %q", raw)
		}
		pageSize = n
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &ArxivScanner{
		name:     site.Name,
		listURL:  listURL,
		pageSize: pageSize,
		pages:    newPageFetcher(opts),
		logger:   logger,
	}, nil
}

func arxivFactory(opts HTTPOptions) scanner.Factory {
	return func(site scanner.Site, logger *slog.Logger) (scanner.Source, error) {
		return NewArxivScanner(site, opts, logger)
	}
}

// Name identifies the site.
func (a *ArxivScanner) Name() string {
	return a.name
}

// FetchRecent returns the newest listing entries. Entries carry a date-only
// value; those without one are left for FetchTimestamp.
func (a *ArxivScanner) FetchRecent(ctx context.Context) ([]domain.Item, error) {
	doc, err := a.pages.document(ctx, buildPageURL(a.listURL, 0, a.pageSize))
	if err != nil {
		return nil, err
	}

	var items []domain.Item
	seen := map[string]struct{}{}
	doc.Find("dl > dt").Each(func(_ int, dt *goquery.Selection) {
		item, err := a.parseEntry(dt, dt.Next())
		if err != nil {
			a.logger.Debug("skip entry", "error", err)
			return
		}
		if _, dup := seen[item.Link]; dup {
			return
		}
		seen[item.Link] = struct{}{}
		items = append(items, item)
	})

	return items, nil
}

// FetchTimestamp reads the submission date from the abstract page.
func (a *ArxivScanner) FetchTimestamp(ctx context.Context, item domain.Item) (time.Time, error) {
	doc, err := a.pages.document(ctx, item.Link)
	if err != nil {
		return time.Time{}, err
	}

	dateline := doc.Find(".dateline").First().Text()
	published, err := parseEnglishDay(dateline)
	if err != nil {
		return time.Time{}, fmt.Errorf("abstract %s: %w", item.Link, err)
	}
	return published, nil
}

func (a *ArxivScanner) parseEntry(dt, dd *goquery.Selection) (domain.Item, error) {
	href, ok := dt.Find(`a[href*="/abs/"]`).First().Attr("href")
	if !ok {
		return domain.Item{}, fmt.Errorf("entry without abstract link")
	}
	link, err := resolveLink(a.listURL, href)
	if err != nil {
		return domain.Item{}, err
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))

	item := domain.Item{
		Link:   link,
		Title:  collapseSpace(title),
		Source: a.name,
	}

	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}
	if dateText != "" {
		if published, err := parseEnglishDay(dateText); err == nil {
			item.PublishedAt = published
		}
	}

	return item, nil
}

func buildPageURL(base *url.URL, skip, pageSize int) string {
	page := *base
	query := page.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	page.RawQuery = query.Encode()
	return page.String()
}
