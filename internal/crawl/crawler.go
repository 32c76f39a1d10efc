package crawl

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Crawler fetches one or more URLs, dispatching each to the strategy
// classifyURL picks, and returns a per-URL Result — a single bad URL never
// aborts the batch, mirroring spec.md §4.4's failure-isolation contract.
type Crawler struct {
	cfg     Config
	fetcher *fetcher

	sem *semaphore.Weighted // process-wide concurrency cap

	hostGatesMu sync.Mutex
	hostGates   map[string]chan struct{} // one in-flight token per host
}

// New builds a Crawler with the given tuning. Safe for concurrent use by
// multiple ingestion calls — the semaphore and host gates are shared state.
func New(cfg Config) *Crawler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig().MaxDepth
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}
	return &Crawler{
		cfg:       cfg,
		fetcher:   newFetcher(cfg),
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		hostGates: make(map[string]chan struct{}),
	}
}

func (c *Crawler) hostGate(host string) chan struct{} {
	c.hostGatesMu.Lock()
	defer c.hostGatesMu.Unlock()
	g, ok := c.hostGates[host]
	if !ok {
		g = make(chan struct{}, 1)
		c.hostGates[host] = g
	}
	return g
}

// job is one unit of crawl work: a URL at a given recursion depth.
type job struct {
	url   string
	depth int
}

// Crawl fetches every url in urls. When recursive is true and a URL
// classifies as an HTML page, internal same-site links are followed up to
// cfg.MaxDepth. The pending-work queue is bounded at MaxConcurrent*2 per
// spec.md's backpressure rule: enqueuing blocks once that's full, which
// naturally stalls the frontier producer rather than growing unbounded.
func (c *Crawler) Crawl(ctx context.Context, urls []string, recursive bool) []Result {
	visited := &visitedSet{seen: make(map[string]bool)}
	queue := make(chan job, c.cfg.MaxConcurrent*2)
	var results []Result
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	g, gctx := errgroup.WithContext(ctx)

	// Worker pool first, so the seed enqueue below can't deadlock against an
	// unbuffered-beyond-capacity queue with nobody yet draining it.
	workerCount := c.cfg.MaxConcurrent
	for i := 0; i < workerCount; i++ {
		g.Go(func() error {
			for j := range queue {
				c.processJob(gctx, j, recursive, visited, queue, &wg, &resultsMu, &results)
			}
			return nil
		})
	}

	// Every job's wg.Done() is deferred until after it has wg.Add()'ed and
	// enqueued all of its own discovered children, so the counter can only
	// reach zero once truly no work remains — safe to close queue then. The
	// extra Add/Done pair around seeding keeps the counter off zero until
	// every seed URL has been enqueued, even if the seed list is empty.
	wg.Add(1)
	go func() {
		wg.Wait()
		close(queue)
	}()

	for _, u := range urls {
		if canon, err := canonicalize(u); err != nil || !visited.markIfNew(canon) {
			continue
		}
		wg.Add(1)
		queue <- job{url: u, depth: 0}
	}
	wg.Done()

	_ = g.Wait()
	return results
}

func (c *Crawler) processJob(ctx context.Context, j job, recursive bool, visited *visitedSet, queue chan job, wg *sync.WaitGroup, resultsMu *sync.Mutex, results *[]Result) {
	defer wg.Done()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		recordResult(resultsMu, results, Result{URL: j.url, Err: err})
		return
	}
	defer c.sem.Release(1)

	parsed, err := url.Parse(j.url)
	if err != nil {
		recordResult(resultsMu, results, Result{URL: j.url, Err: err})
		return
	}

	gate := c.hostGate(parsed.Hostname())
	select {
	case gate <- struct{}{}:
		defer func() { <-gate }()
	case <-ctx.Done():
		recordResult(resultsMu, results, Result{URL: j.url, Err: ctx.Err()})
		return
	}

	strategy := classifyURL(j.url, recursive)
	switch strategy {
	case StrategyText:
		page, err := c.fetcher.fetchText(ctx, j.url)
		recordResult(resultsMu, results, Result{URL: j.url, Page: page, Err: err})

	case StrategySitemap:
		locs, err := c.fetcher.fetchSitemap(ctx, j.url)
		if err != nil {
			recordResult(resultsMu, results, Result{URL: j.url, Err: err})
			return
		}
		for _, loc := range locs {
			if canon, cerr := canonicalize(loc); cerr == nil && visited.markIfNew(canon) {
				wg.Add(1)
				select {
				case queue <- job{url: loc, depth: j.depth}:
				case <-ctx.Done():
					wg.Done()
				}
			}
		}

	case StrategyHTMLSingle, StrategyHTMLRecursive:
		page, doc, err := c.fetcher.fetchHTML(ctx, j.url)
		if err != nil {
			recordResult(resultsMu, results, Result{URL: j.url, Err: err})
			return
		}
		recordResult(resultsMu, results, Result{URL: j.url, Page: page})

		if strategy == StrategyHTMLRecursive && j.depth < c.cfg.MaxDepth {
			for _, link := range extractLinks(doc, parsed) {
				linkURL, perr := url.Parse(link)
				if perr != nil || !sameETLDPlus1(parsed, linkURL) {
					continue
				}
				if canon, cerr := canonicalize(link); cerr == nil && visited.markIfNew(canon) {
					wg.Add(1)
					select {
					case queue <- job{url: link, depth: j.depth + 1}:
					case <-ctx.Done():
						wg.Done()
					}
				}
			}
		}
	}
}

func recordResult(mu *sync.Mutex, results *[]Result, r Result) {
	mu.Lock()
	*results = append(*results, r)
	mu.Unlock()
}

// visitedSet is an in-memory, canonicalized-URL dedup set shared across one
// Crawl call's worker pool.
type visitedSet struct {
	mu   sync.Mutex
	seen map[string]bool
}

// markIfNew reports whether canon had not yet been seen, marking it seen as
// a side effect — an atomic check-and-set so two workers racing on the same
// link don't both enqueue it.
func (v *visitedSet) markIfNew(canon string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seen[canon] {
		return false
	}
	v.seen[canon] = true
	return true
}
