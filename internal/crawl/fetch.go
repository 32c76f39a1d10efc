package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
)

// canonicalize strips the fragment and a trailing slash so the visited set
// treats "https://x/a#frag" and "https://x/a/" the same as "https://x/a".
func canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

// sameETLDPlus1 reports whether two URLs share a registrable domain, the
// boundary the recursive HTML strategy uses to stay on-site.
func sameETLDPlus1(a, b *url.URL) bool {
	da, err1 := publicsuffix.EffectiveTLDPlusOne(a.Hostname())
	db, err2 := publicsuffix.EffectiveTLDPlusOne(b.Hostname())
	if err1 != nil || err2 != nil {
		return a.Hostname() == b.Hostname()
	}
	return da == db
}

// fetcher performs the actual HTTP GET and strategy-specific parsing for one
// URL. It holds no state beyond an *http.Client so it can be shared freely
// across worker goroutines.
type fetcher struct {
	client    *http.Client
	userAgent string
}

func newFetcher(cfg Config) *fetcher {
	return &fetcher{
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		userAgent: cfg.UserAgent,
	}
}

func (f *fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d: %s", rawURL, resp.StatusCode, string(body))
	}
	return resp, nil
}

// fetchText fetches rawURL as a single raw-text document (the .txt / llms.txt
// strategy): no HTML parsing, content used verbatim as markdown.
func (f *fetcher) fetchText(ctx context.Context, rawURL string) (*Page, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Page{URL: rawURL, Markdown: string(body)}, nil
}

// fetchHTML fetches and converts rawURL to markdown, also returning the
// parsed document tree so the caller can extract links for recursive mode.
func (f *fetcher) fetchHTML(ctx context.Context, rawURL string) (*Page, *html.Node, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	markdown, title := htmlToMarkdown(doc)
	return &Page{URL: rawURL, Markdown: markdown, Title: title}, doc, nil
}

// fetchSitemap fetches rawURL and returns the <loc> entries it lists.
func (f *fetcher) fetchSitemap(ctx context.Context, rawURL string) ([]string, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return parseSitemap(resp.Body)
}
