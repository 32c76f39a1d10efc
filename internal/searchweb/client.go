// Package searchweb implements the search+crawl composite (spec.md §4.7):
// query a metasearch backend, ingest the results, then either return raw
// markdown or run retrieval over what was just ingested.
package searchweb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SearchBackendError wraps a non-2xx metasearch response with a truncated
// body snippet for diagnostics, per spec.md §4.7.
type SearchBackendError struct {
	StatusCode int
	Snippet    string
}

func (e *SearchBackendError) Error() string {
	return fmt.Sprintf("metasearch backend returned status %d: %s", e.StatusCode, e.Snippet)
}

// metasearchResult is one entry in the backend's results[] array.
type metasearchResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type metasearchResponse struct {
	Results []metasearchResult `json:"results"`
}

// MetasearchClient queries an HTTP metasearch backend for candidate URLs.
// The header set below is load-bearing: the teacher's metasearch-bound
// backends 403/429 without a browser-plausible Accept/Accept-Language/
// Accept-Encoding set, per spec.md §4.7.
type MetasearchClient struct {
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

func NewMetasearchClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *MetasearchClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MetasearchClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		logger:  logger.With().Str("component", "searchweb.metasearch").Logger(),
	}
}

// Search queries the metasearch backend and returns up to numResults
// candidate URLs in the backend's ranked order.
func (m *MetasearchClient) Search(ctx context.Context, query string, numResults int) ([]string, error) {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse metasearch base url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	if numResults > 0 {
		q.Set("num_results", strconv.Itoa(numResults))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build metasearch request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Error().Err(err).Str("query", query).Msg("metasearch request failed")
		return nil, fmt.Errorf("metasearch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		m.logger.Warn().Int("status", resp.StatusCode).Str("query", query).Msg("metasearch backend rejected request")
		return nil, &SearchBackendError{StatusCode: resp.StatusCode, Snippet: string(snippet)}
	}

	var parsed metasearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode metasearch response: %w", err)
	}

	urls := make([]string, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	if numResults > 0 && len(urls) > numResults {
		urls = urls[:numResults]
	}

	m.logger.Debug().Str("query", query).Int("result_count", len(urls)).Dur("elapsed", time.Since(start)).Msg("metasearch query complete")
	return urls, nil
}

// dedupeAndFilter removes duplicate URLs (keeping first occurrence) and
// drops any whose host matches a denylist entry (spec.md §4.7 step 2).
func dedupeAndFilter(urls []string, denylist []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))

	for _, raw := range urls {
		if seen[raw] {
			continue
		}
		seen[raw] = true

		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		host := strings.TrimPrefix(u.Hostname(), "www.")
		denied := false
		for _, d := range denylist {
			if host == d || strings.HasSuffix(host, "."+d) {
				denied = true
				break
			}
		}
		if !denied {
			out = append(out, raw)
		}
	}
	return out
}
