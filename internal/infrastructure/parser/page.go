package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"NewsStream/internal/scanner"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "NewsStream/1.0"
)

// HTTPOptions configures how adapters talk to external pages.
type HTTPOptions struct {
	Client            *http.Client
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
}

// Register adds every built-in adapter kind to reg.
func Register(reg *scanner.Registry, opts HTTPOptions) {
	reg.Register(KindGovNews, govNewsFactory(opts))
	reg.Register(KindRSS, rssFactory(opts))
	reg.Register(KindArxiv, arxivFactory(opts))
}

// pageFetcher issues rate-limited GET requests on behalf of one adapter.
type pageFetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

func newPageFetcher(opts HTTPOptions) *pageFetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &pageFetcher{
		client:    client,
		userAgent: ua,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// get returns the response for a 200 answer; the caller closes the body.
func (f *pageFetcher) get(ctx context.Context, pageURL string) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", pageURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s returned %s", pageURL, resp.Status)
	}

	return resp, nil
}

func (f *pageFetcher) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// resolveLink makes href absolute against base and drops fragments.
func resolveLink(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty link")
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", href, err)
	}

	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String(), nil
}

func option(site scanner.Site, key, fallback string) string {
	if v := strings.TrimSpace(site.Options[key]); v != "" {
		return v
	}
	return fallback
}
