// Package retrieval turns scored chunk candidates into the final search
// result list: threshold filtering, deterministic ordering and pagination.
// Both store backends feed it the same candidate shape, so ranking behavior
// is identical regardless of where the similarity arithmetic ran.
package retrieval

import (
	"sort"

	"github.com/hrygo/docsense/store"
)

// DefaultThreshold is the minimum similarity for a candidate to appear in
// results. One consistent default everywhere.
const DefaultThreshold = 0.5

// DefaultLimit caps results when the caller does not.
const DefaultLimit = 10

// SearchResult is one ranked hit. Score is clamped to [0,1].
type SearchResult struct {
	Chunk    *store.Chunk
	Document *store.Document
	Score    float32
	// Degraded signals the query was answered off a fallback vector; the
	// result is usable but lower fidelity.
	Degraded bool
}

// Rank filters candidates by threshold, orders them score-descending with a
// stable deterministic tie-break (document ID, then ordinal, then chunk ID),
// and truncates to limit only after sorting and filtering.
func Rank(candidates []*store.ChunkWithScore, threshold float32, limit int) []SearchResult {
	if limit <= 0 {
		limit = DefaultLimit
	}

	kept := make([]*store.ChunkWithScore, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < threshold {
			continue
		}
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		if kept[i].Document.ID != kept[j].Document.ID {
			return kept[i].Document.ID < kept[j].Document.ID
		}
		if kept[i].Chunk.Ordinal != kept[j].Chunk.Ordinal {
			return kept[i].Chunk.Ordinal < kept[j].Chunk.Ordinal
		}
		return kept[i].Chunk.ID < kept[j].Chunk.ID
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}

	results := make([]SearchResult, 0, len(kept))
	for _, c := range kept {
		results = append(results, SearchResult{
			Chunk:    c.Chunk,
			Document: c.Document,
			Score:    clamp01(c.Score),
		})
	}
	return results
}

func clamp01(s float32) float32 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
