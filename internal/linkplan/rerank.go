package linkplan

import (
	"context"
	"fmt"
	"sort"

	"horse.fit/crosslink/internal/index"
)

// Rerank rescores candidates with the cross-encoder and keeps the top
// cfg.RerankKeep. The blended score is replaced, not mixed in; rerank exists
// to correct blend misrankings and its ordering wins outright. Ties keep the
// incoming blend order.
func Rerank(ctx context.Context, searcher index.Searcher, query string, candidates []Candidate, cfg Config) ([]Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	docs := make([]index.RerankDoc, len(candidates))
	for i, c := range candidates {
		docs[i] = index.RerankDoc{ID: c.ArticleID, Text: c.BestChunk}
	}

	scores, err := searcher.Rerank(ctx, query, docs)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("rerank returned %d scores for %d candidates", len(scores), len(candidates))
	}

	rescored := make([]Candidate, len(candidates))
	copy(rescored, candidates)
	for i := range rescored {
		rescored[i].Rerank = scores[i]
	}
	sort.SliceStable(rescored, func(i, j int) bool {
		return rescored[i].Rerank > rescored[j].Rerank
	})

	keep := cfg.RerankKeep
	if keep < 1 {
		keep = 40
	}
	if len(rescored) > keep {
		rescored = rescored[:keep]
	}
	return rescored, nil
}
