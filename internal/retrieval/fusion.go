package retrieval

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains (used by Azure AI Search, OpenSearch,
// etc.), adapted from the teacher's hybrid-search fusion pass.
const DefaultRRFConstant = 60

// fusedChunk is one chunk's combined rank across the vector and keyword
// result lists, before rerank is applied.
type fusedChunk struct {
	ChunkID     string
	RRFScore    float64
	VecScore    float64
	VecRank     int // 1-indexed, 0 if absent
	KeywordRank int // 1-indexed, 0 if absent
	InBothLists bool
}

// rrfFuse merges a vector-ranked and a keyword-ranked ID list into one
// RRF-scored, deduplicated ranking, truncated to limit entries.
//
// RRF_score(d) = Σ 1 / (k + rank_i), summed over every list d appears in.
// A document missing from one list still gets that list's contribution at
// missingRank = max(len(vec), len(keyword)) + 1, per spec.md §4.1.
func rrfFuse(vecIDs, keywordIDs []string, k, limit int) []fusedChunk {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	scores := make(map[string]*fusedChunk, len(vecIDs)+len(keywordIDs))

	get := func(id string) *fusedChunk {
		if f, ok := scores[id]; ok {
			return f
		}
		f := &fusedChunk{ChunkID: id}
		scores[id] = f
		return f
	}

	for rank, id := range vecIDs {
		f := get(id)
		f.VecRank = rank + 1
		f.RRFScore += 1.0 / float64(k+rank+1)
	}
	for rank, id := range keywordIDs {
		f := get(id)
		f.KeywordRank = rank + 1
		f.RRFScore += 1.0 / float64(k+rank+1)
		if f.VecRank > 0 {
			f.InBothLists = true
		}
	}

	missingRank := len(vecIDs)
	if len(keywordIDs) > missingRank {
		missingRank = len(keywordIDs)
	}
	missingRank++
	for _, f := range scores {
		if f.VecRank == 0 && f.KeywordRank > 0 {
			f.RRFScore += 1.0 / float64(k+missingRank)
		}
		if f.KeywordRank == 0 && f.VecRank > 0 {
			f.RRFScore += 1.0 / float64(k+missingRank)
		}
	}

	out := make([]fusedChunk, 0, len(scores))
	for _, f := range scores {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		if out[i].InBothLists != out[j].InBothLists {
			return out[i].InBothLists
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
