package searchweb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aman-CERP/ragcrawl/internal/ingest"
	"github.com/Aman-CERP/ragcrawl/internal/retrieval"
)

// Request is one search() tool call's parameters, per spec.md §4.7.
type Request struct {
	Query             string
	NumResults        int
	MaxConcurrent     int
	ReturnRawMarkdown bool
	Mode              retrieval.Mode
}

// URLGroup is the retrieval results for one ingested URL, grouped per
// spec.md §4.7 step 4.
type URLGroup struct {
	URL     string
	Results []retrieval.Result
}

// Response is the search+crawl composite's output: either raw markdown per
// URL, or retrieval results grouped by URL.
type Response struct {
	Markdown map[string]string
	Groups   []URLGroup
}

// Composite wires the metasearch client to ingestion (C5) and retrieval
// (C6), implementing spec.md §4.7's four-step search() tool.
type Composite struct {
	Metasearch *MetasearchClient
	Pipeline   *ingest.Pipeline
	Retrieval  *retrieval.Engine
	Denylist   []string
	Logger     zerolog.Logger
}

func (c *Composite) Search(ctx context.Context, req Request) (*Response, error) {
	numResults := req.NumResults
	if numResults <= 0 {
		numResults = 6
	}

	// Step 1: query the metasearch backend.
	rawURLs, err := c.Metasearch.Search(ctx, req.Query, numResults)
	if err != nil {
		return nil, err
	}

	// Step 2: dedupe and denylist-filter.
	urls := dedupeAndFilter(rawURLs, c.Denylist)
	if len(urls) == 0 {
		c.Logger.Info().Str("query", req.Query).Msg("no candidate urls survived dedup/denylist")
		return &Response{Markdown: map[string]string{}}, nil
	}

	// Step 3: ingest in batch mode.
	maxConcurrent := req.MaxConcurrent
	start := time.Now()
	ingestReq := ingest.Request{
		URLs:              urls,
		Mode:              ingest.ModeBatch,
		ReturnRawMarkdown: req.ReturnRawMarkdown,
		MaxConcurrent:     maxConcurrent,
	}
	report, err := c.Pipeline.Run(ctx, ingestReq)
	if err != nil {
		return nil, fmt.Errorf("ingest search results: %w", err)
	}
	c.Logger.Debug().Str("query", req.Query).Int("url_count", len(urls)).Dur("elapsed", time.Since(start)).Msg("search+crawl ingest complete")

	// Step 4: return raw markdown, or run retrieval grouped by URL.
	if req.ReturnRawMarkdown {
		md := make(map[string]string, len(report.Results))
		for _, r := range report.Results {
			if r.OK {
				md[r.URL] = r.Markdown
			}
		}
		return &Response{Markdown: md}, nil
	}

	results, err := c.Retrieval.Query(ctx, retrieval.Query{
		Text: req.Query,
		K:    numResults * 10,
		Mode: req.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval over search results: %w", err)
	}

	byURL := make(map[string][]retrieval.Result, len(urls))
	order := make([]string, 0, len(urls))
	for _, r := range report.Results {
		if r.OK {
			if _, seen := byURL[r.URL]; !seen {
				order = append(order, r.URL)
			}
			byURL[r.URL] = nil
		}
	}
	for _, res := range results {
		if _, ok := byURL[res.URL]; ok {
			byURL[res.URL] = append(byURL[res.URL], res)
		}
	}

	groups := make([]URLGroup, 0, len(order))
	for _, url := range order {
		groups = append(groups, URLGroup{URL: url, Results: byURL[url]})
	}

	return &Response{Groups: groups}, nil
}
