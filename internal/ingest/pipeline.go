// Package ingest drives the crawl-chunk-embed-upsert pipeline that turns
// fetched web content into searchable chunks and code examples, grounded on
// the teacher's internal/index.Runner stage sequencing (scan/chunk/context/
// embed/index) but replacing each stage's subject from project files to
// crawled URLs.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/semaphore"

	"github.com/Aman-CERP/ragcrawl/internal/chunk"
	"github.com/Aman-CERP/ragcrawl/internal/crawl"
	"github.com/Aman-CERP/ragcrawl/internal/embed"
	"github.com/Aman-CERP/ragcrawl/internal/store"
)

// Mode selects how the crawl stage interprets the input URLs.
type Mode string

const (
	ModeSingle    Mode = "single"
	ModeBatch     Mode = "batch"
	ModeRecursive Mode = "recursive"
	ModeSitemap   Mode = "sitemap"
	ModeText      Mode = "txt"
)

// Request is one ingestion call's parameters, per spec.md §4.5.
type Request struct {
	URLs                       []string
	Mode                       Mode
	ReturnRawMarkdown          bool
	ExtractCodeExamples        bool
	EnableContextualEmbeddings bool
	MaxConcurrent              int // accepted but not applied: Run crawls with the Crawler's configured concurrency
}

// URLReport is the per-URL outcome returned to the caller.
type URLReport struct {
	URL                string
	OK                 bool
	Error              string `json:",omitempty"`
	ChunksWritten      int
	CodeExamplesWritten int
	Markdown           string `json:",omitempty"` // only populated when ReturnRawMarkdown
}

// Report is the full ingestion outcome.
type Report struct {
	Results  []URLReport
	Duration time.Duration
}

// Deps bundles the pipeline's collaborators. Crawler, Embedder, and Store
// are shared, process-wide singletons per spec.md §4.9's single-flight rule;
// Pipeline itself holds no long-lived resource of its own.
type Deps struct {
	Crawler        *crawl.Crawler
	Chunker        *chunk.MarkdownChunker
	Embedder       embed.Embedder
	Store          store.Store
	Contextualizer Contextualizer
	Summarizer     Summarizer

	EmbedBatchSize        int // B, default 32
	UpsertBatchSize       int // M, default 100
	ContextualConcurrency int // default 4
	MinCodeBlockChars     int
	SurroundingContextLen int

	Logger *slog.Logger
}

// Pipeline executes ingestion requests against its injected Deps.
type Pipeline struct {
	deps Deps
}

// New builds a Pipeline, filling in spec.md's reference defaults for any
// unset batch/concurrency knob.
func New(deps Deps) *Pipeline {
	if deps.EmbedBatchSize <= 0 {
		deps.EmbedBatchSize = 32
	}
	if deps.UpsertBatchSize <= 0 {
		deps.UpsertBatchSize = 100
	}
	if deps.ContextualConcurrency <= 0 {
		deps.ContextualConcurrency = 4
	}
	if deps.MinCodeBlockChars <= 0 {
		deps.MinCodeBlockChars = 300
	}
	if deps.SurroundingContextLen <= 0 {
		deps.SurroundingContextLen = 500
	}
	if deps.Contextualizer == nil {
		deps.Contextualizer = NoOpContextualizer{}
	}
	if deps.Summarizer == nil {
		deps.Summarizer = NoOpSummarizer{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{deps: deps}
}

// Run executes all eight ingestion stages from spec.md §4.5 and returns a
// per-URL report. A single URL's failure in the crawl, chunk, or
// delete-by-url stage is isolated into its own URLReport rather than
// aborting the batch. An embed or upsert error is not isolated: Run stops at
// the first failing batch and returns the error with no report.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	recursive := req.Mode == ModeRecursive

	// Stage 1: crawl.
	crawlResults := p.deps.Crawler.Crawl(ctx, req.URLs, recursive)

	reportByURL := make(map[string]*URLReport, len(crawlResults))
	var pages []*crawl.Page
	for _, cr := range crawlResults {
		r := &URLReport{URL: cr.URL}
		if cr.Err != nil {
			r.OK = false
			r.Error = cr.Err.Error()
		} else if cr.Page != nil {
			r.OK = true
			pages = append(pages, cr.Page)
		}
		reportByURL[cr.URL] = r
	}

	// Stage 2: chunk each page, stage 3: optional contextual enrichment,
	// stage 4: delete-by-url, then accumulate into one flat chunk list.
	var allChunks []*store.SourceChunk
	var allCodeExamples []*store.CodeExample

	for _, page := range pages {
		select {
		case <-ctx.Done():
			reportByURL[page.URL].OK = false
			reportByURL[page.URL].Error = ctx.Err().Error()
			continue
		default:
		}

		chunks, err := p.chunkPage(ctx, page, req.EnableContextualEmbeddings)
		if err != nil {
			reportByURL[page.URL].OK = false
			reportByURL[page.URL].Error = err.Error()
			continue
		}

		if err := p.deps.Store.DeleteByURL(ctx, page.URL); err != nil {
			reportByURL[page.URL].OK = false
			reportByURL[page.URL].Error = fmt.Sprintf("delete existing chunks: %v", err)
			continue
		}

		reportByURL[page.URL].ChunksWritten = len(chunks)
		if req.ReturnRawMarkdown {
			reportByURL[page.URL].Markdown = page.Markdown
		}
		allChunks = append(allChunks, chunks...)

		if req.ExtractCodeExamples {
			if err := p.deps.Store.DeleteCodeExamplesByURL(ctx, page.URL); err != nil {
				p.deps.Logger.Warn("delete existing code examples failed", slog.String("url", page.URL), slog.String("error", err.Error()))
			}
			examples := p.extractCodeExamples(ctx, page)
			reportByURL[page.URL].CodeExamplesWritten = len(examples)
			allCodeExamples = append(allCodeExamples, examples...)
		}
	}

	// Stage 5+6: batch-embed and upsert chunks.
	if err := p.embedAndUpsertChunks(ctx, allChunks); err != nil {
		return nil, fmt.Errorf("embed and upsert chunks: %w", err)
	}

	// Stage 7: batch-embed and upsert code examples.
	if len(allCodeExamples) > 0 {
		if err := p.embedAndUpsertCodeExamples(ctx, allCodeExamples); err != nil {
			return nil, fmt.Errorf("embed and upsert code examples: %w", err)
		}
	}

	// Stage 8: update the source registry for every touched source.
	p.updateSourceRegistry(ctx, pages, allChunks)

	results := make([]URLReport, 0, len(reportByURL))
	for _, page := range pages {
		results = append(results, *reportByURL[page.URL])
	}
	for _, cr := range crawlResults {
		if cr.Page == nil {
			results = append(results, *reportByURL[cr.URL])
		}
	}

	return &Report{Results: results, Duration: time.Since(start)}, nil
}

// chunkPage chunks one page's markdown and, if requested, enriches each
// chunk with an LLM-generated context string prepended to its content
// before embedding (spec.md §4.5 step 3).
func (p *Pipeline) chunkPage(ctx context.Context, page *crawl.Page, contextual bool) ([]*store.SourceChunk, error) {
	fileInput := &chunk.FileInput{Path: page.URL, Content: []byte(page.Markdown), Language: "markdown"}
	rawChunks, err := p.deps.Chunker.Chunk(ctx, fileInput)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", page.URL, err)
	}

	sourceID := deriveSourceID(page.URL)
	out := make([]*store.SourceChunk, len(rawChunks))
	now := time.Now()

	if contextual && p.deps.Contextualizer.Available(ctx) {
		p.enrichWithContext(ctx, rawChunks, page.Markdown)
	}

	for i, c := range rawChunks {
		out[i] = &store.SourceChunk{
			ID:         sourceChunkID(page.URL, i),
			SourceID:   sourceID,
			URL:        page.URL,
			Content:    c.Content,
			HeaderPath: c.Metadata["header_path"],
			ChunkIndex: i,
			Metadata:   c.Metadata,
			CreatedAt:  now,
		}
	}
	return out, nil
}

// enrichWithContext runs the contextual-embeddings LLM call over every
// chunk, bounded by a semaphore separate from the crawl/embed concurrency
// caps so the LLM backend isn't hammered (spec.md §4.5 step 3).
func (p *Pipeline) enrichWithContext(ctx context.Context, chunks []*chunk.Chunk, fullDocument string) {
	sem := semaphore.NewWeighted(int64(p.deps.ContextualConcurrency))
	var wg sync.WaitGroup

	for _, c := range chunks {
		c := c
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			ctxString, err := p.deps.Contextualizer.Contextualize(ctx, fullDocument, c.Content)
			if err != nil || ctxString == "" {
				return
			}
			c.Content = ctxString + "\n\n" + c.Content
		}()
	}
	wg.Wait()
}

func (p *Pipeline) extractCodeExamples(ctx context.Context, page *crawl.Page) []*store.CodeExample {
	raw := chunk.ExtractCodeExamples(page.Markdown, p.deps.MinCodeBlockChars, p.deps.SurroundingContextLen)
	sourceID := deriveSourceID(page.URL)
	now := time.Now()

	out := make([]*store.CodeExample, len(raw))
	for i, ex := range raw {
		summary, err := p.deps.Summarizer.SummarizeCode(ctx, ex.Code, ex.Context)
		if err != nil {
			p.deps.Logger.Debug("code example summarization failed", slog.String("url", page.URL), slog.String("error", err.Error()))
		}
		out[i] = &store.CodeExample{
			ID:        codeExampleID(page.URL, i),
			SourceID:  sourceID,
			URL:       page.URL,
			Code:      ex.Code,
			Language:  ex.Language,
			Summary:   summary,
			CreatedAt: now,
		}
	}
	return out
}

func (p *Pipeline) embedAndUpsertChunks(ctx context.Context, chunks []*store.SourceChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.deps.EmbedBatchSize {
		end := min(start+p.deps.EmbedBatchSize, len(chunks))
		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Content
		}
		batchVecs, err := p.deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batchVecs...)
	}

	for start := 0; start < len(chunks); start += p.deps.UpsertBatchSize {
		end := min(start+p.deps.UpsertBatchSize, len(chunks))
		if err := p.deps.Store.UpsertChunks(ctx, chunks[start:end], vectors[start:end]); err != nil {
			return fmt.Errorf("upsert chunks %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (p *Pipeline) embedAndUpsertCodeExamples(ctx context.Context, examples []*store.CodeExample) error {
	if len(examples) == 0 {
		return nil
	}

	vectors := make([][]float32, 0, len(examples))
	for start := 0; start < len(examples); start += p.deps.EmbedBatchSize {
		end := min(start+p.deps.EmbedBatchSize, len(examples))
		texts := make([]string, end-start)
		for i, ex := range examples[start:end] {
			texts[i] = ex.Code + "\n" + ex.Summary
		}
		batchVecs, err := p.deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed code example batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batchVecs...)
	}

	for start := 0; start < len(examples); start += p.deps.UpsertBatchSize {
		end := min(start+p.deps.UpsertBatchSize, len(examples))
		if err := p.deps.Store.UpsertCodeExamples(ctx, examples[start:end], vectors[start:end]); err != nil {
			return fmt.Errorf("upsert code examples %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// updateSourceRegistry recomputes each touched source's aggregate summary
// and word count (spec.md §4.5 step 8).
func (p *Pipeline) updateSourceRegistry(ctx context.Context, pages []*crawl.Page, chunks []*store.SourceChunk) {
	bySource := make(map[string][]string)
	for _, c := range chunks {
		bySource[c.SourceID] = append(bySource[c.SourceID], c.Content)
	}

	for sourceID, contents := range bySource {
		aggregate := strings.Join(contents, "\n\n")
		totalWords := len(strings.Fields(aggregate))

		summary, err := p.deps.Summarizer.SummarizeSource(ctx, aggregate)
		if err != nil {
			p.deps.Logger.Debug("source summarization failed", slog.String("source_id", sourceID), slog.String("error", err.Error()))
		}

		if err := p.deps.Store.UpsertSource(ctx, &store.Source{
			SourceID:   sourceID,
			Summary:    summary,
			TotalWords: totalWords,
			ChunkCount: len(contents),
			UpdatedAt:  time.Now(),
		}); err != nil {
			p.deps.Logger.Warn("upsert source failed", slog.String("source_id", sourceID), slog.String("error", err.Error()))
		}
	}
}

// deriveSourceID returns the registrable domain (eTLD+1) for a URL, used as
// the source registry's natural key.
func deriveSourceID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if domain, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname()); err == nil {
		return domain
	}
	return u.Hostname()
}

func sourceChunkID(url string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", url, index)))
	return hex.EncodeToString(h[:])[:16]
}

func codeExampleID(url string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#code#%d", url, index)))
	return hex.EncodeToString(h[:])[:16]
}
