package validate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Aman-CERP/ragcrawl/internal/embed"
	"github.com/Aman-CERP/ragcrawl/internal/graph"
	"github.com/Aman-CERP/ragcrawl/internal/store"
)

// Mode selects the performance/accuracy tradeoff for Checker.Validate, per
// spec.md §4.8.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeBalanced Mode = "balanced"
	ModeThorough Mode = "thorough"
)

// Category classifies a finding's confidence band.
type Category string

const (
	CategoryValidated Category = "validated"
	CategoryWarning   Category = "warning"
	CategoryCritical  Category = "critical"
)

// Finding is one symbol use's validation outcome.
type Finding struct {
	Line             int
	Kind             SymbolKind
	Name             string
	Confidence       float64
	Category         Category
	ActualSignature  string
	Suggestions      []string
}

// Report is the full script-validation output, per spec.md §4.8.
type Report struct {
	Findings    []Finding
	OverallRisk float64 // 1 - mean(confidence)
	Counts      map[Category]int
}

// graphQueryCacheTTL is the default TTL for cached (symbol, graph_query)
// structural-check results.
const graphQueryCacheTTL = time.Hour
const graphQueryCacheSize = 4096

// Checker runs the dual-channel (structural + semantic) validation pass.
type Checker struct {
	graphStore *graph.Store
	embedder   embed.Embedder
	codeStore  store.Store

	cache *lru.LRU[string, float64]
	mu    sync.Mutex
}

func NewChecker(graphStore *graph.Store, embedder embed.Embedder, codeStore store.Store) *Checker {
	return &Checker{
		graphStore: graphStore,
		embedder:   embedder,
		codeStore:  codeStore,
		cache:      lru.NewLRU[string, float64](graphQueryCacheSize, nil, graphQueryCacheTTL),
	}
}

// Validate scores each already-enumerated use in turn, per spec.md §4.8's
// performance-mode rules.
func (c *Checker) Validate(ctx context.Context, uses []SymbolUse, mode Mode) (*Report, error) {
	findings := make([]Finding, len(uses))

	for i, u := range uses {
		sg := c.structuralScore(u)

		var sv float64
		needSemantic := mode != ModeFast || sg < 0.9
		if needSemantic {
			var err error
			sv, err = c.semanticScore(ctx, u)
			if err != nil {
				sv = 0
			}
		}

		confidence := clamp01(0.6*sg + 0.4*sv)
		category := classify(confidence)

		actualSig, suggestions := c.diagnostics(u, sg)

		findings[i] = Finding{
			Line:            u.Line,
			Kind:            u.Kind,
			Name:            u.QualifiedName,
			Confidence:      confidence,
			Category:        category,
			ActualSignature: actualSig,
			Suggestions:     suggestions,
		}
	}

	counts := map[Category]int{}
	var sum float64
	for _, f := range findings {
		counts[f.Category]++
		sum += f.Confidence
	}
	mean := 0.0
	if len(findings) > 0 {
		mean = sum / float64(len(findings))
	}

	return &Report{Findings: findings, OverallRisk: clamp01(1 - mean), Counts: counts}, nil
}

// structuralScore runs the graph lookup, caching results per (kind, name)
// for graphQueryCacheTTL.
func (c *Checker) structuralScore(u SymbolUse) float64 {
	cacheKey := fmt.Sprintf("%s|%s", u.Kind, u.QualifiedName)
	c.mu.Lock()
	if v, ok := c.cache.Get(cacheKey); ok {
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	score := c.computeStructuralScore(u)

	c.mu.Lock()
	c.cache.Add(cacheKey, score)
	c.mu.Unlock()

	return score
}

func (c *Checker) computeStructuralScore(u SymbolUse) float64 {
	name := lastSegment(u.QualifiedName)
	if name == "" {
		return 0
	}

	label := labelForKind(u.Kind)
	if label != "" {
		if nodes := c.graphStore.FindByName(label, name); len(nodes) > 0 {
			return 1.0
		}
	}

	// Class/method exists but under a different expected label — still a
	// reasonable match, scored lower (0.6) to reflect the mismatch.
	for _, l := range []graph.Label{graph.LabelMethod, graph.LabelFunction, graph.LabelClass} {
		if l == label {
			continue
		}
		if nodes := c.graphStore.FindByName(l, name); len(nodes) > 0 {
			return 0.6
		}
	}

	if nodes := c.graphStore.FindByNameAnyLabel(name); len(nodes) > 0 {
		return 0.3
	}

	return 0.0
}

func labelForKind(kind SymbolKind) graph.Label {
	switch kind {
	case KindMethodCall:
		return graph.LabelMethod
	case KindFunctionCall:
		return graph.LabelFunction
	case KindClassConstruct:
		return graph.LabelClass
	case KindAttributeAccess:
		return graph.LabelAttribute
	case KindParameterName:
		return graph.LabelParameter
	default:
		return ""
	}
}

// semanticScore embeds "qualified_name + surrounding_line" and searches the
// code-example collection, k=5, taking the max cosine similarity.
func (c *Checker) semanticScore(ctx context.Context, u SymbolUse) (float64, error) {
	text := u.QualifiedName + " " + u.Context
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("embed symbol use: %w", err)
	}

	results, err := c.codeStore.VectorSearchCodeExamples(ctx, store.SearchQuery{QueryVector: vec, Limit: 5})
	if err != nil {
		return 0, fmt.Errorf("search code examples: %w", err)
	}

	var max float64
	for _, r := range results {
		if float64(r.Score) > max {
			max = float64(r.Score)
		}
	}
	return max, nil
}

func (c *Checker) diagnostics(u SymbolUse, sg float64) (actualSignature string, suggestions []string) {
	name := lastSegment(u.QualifiedName)
	label := labelForKind(u.Kind)
	if label == "" {
		return "", nil
	}

	if sg >= 1.0 {
		if nodes := c.graphStore.FindByName(label, name); len(nodes) > 0 {
			return nodes[0].Properties["signature"], nil
		}
	}

	if sg == 0 {
		return "", []string{fmt.Sprintf("%q was not found in the ingested repository graph", u.QualifiedName)}
	}
	return "", nil
}

func classify(confidence float64) Category {
	switch {
	case confidence >= 0.8:
		return CategoryValidated
	case confidence >= 0.6:
		return CategoryWarning
	default:
		return CategoryCritical
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func lastSegment(qualified string) string {
	qualified = strings.TrimSpace(qualified)
	if i := strings.LastIndexAny(qualified, ".:/"); i >= 0 && i+1 < len(qualified) {
		return qualified[i+1:]
	}
	return qualified
}
