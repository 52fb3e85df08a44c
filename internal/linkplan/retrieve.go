package linkplan

import (
	"sort"

	"horse.fit/crosslink/internal/index"
)

type articleAgg struct {
	articleID   int64
	denseBest   float64
	sparseBest  float64
	hasDense    bool
	hasSparse   bool
	bestChunk   string
	bestScore   float64
	chunkSpans  []Span
	chunkSeen   map[int64]bool
	denseCount  int
	sparseCount int
}

// HybridRetrieve aggregates chunk-level dense and sparse hits into
// article-level candidates. Per article, each modality contributes its best
// chunk score; chunks past the per-article cap are ignored. Scores are
// min-max normalized per modality over the returned set, blended by the
// configured weights and the list is truncated to cfg.RetrieveKeep. Pure
// function of its inputs.
func HybridRetrieve(dense, sparse []index.ChunkHit, cfg Config) []Candidate {
	chunkCap := cfg.PerArticleChunkCap
	if chunkCap < 1 {
		chunkCap = 3
	}

	aggs := make(map[int64]*articleAgg)
	order := make([]int64, 0, len(dense)+len(sparse))

	get := func(articleID int64) *articleAgg {
		agg, ok := aggs[articleID]
		if !ok {
			agg = &articleAgg{
				articleID: articleID,
				chunkSeen: map[int64]bool{},
			}
			aggs[articleID] = agg
			order = append(order, articleID)
		}
		return agg
	}

	record := func(agg *articleAgg, hit index.ChunkHit) {
		if agg.chunkSeen[hit.ChunkID] {
			return
		}
		if len(agg.chunkSpans) >= chunkCap {
			return
		}
		agg.chunkSeen[hit.ChunkID] = true
		agg.chunkSpans = append(agg.chunkSpans, Span{
			TextStart: hit.TextStart,
			TextEnd:   hit.TextEnd,
			Text:      hit.Text,
		})
		if hit.Score > agg.bestScore || agg.bestChunk == "" {
			agg.bestScore = hit.Score
			agg.bestChunk = hit.Text
		}
	}

	for _, hit := range dense {
		agg := get(hit.ArticleID)
		if agg.denseCount >= chunkCap {
			continue
		}
		agg.denseCount++
		if !agg.hasDense || hit.Score > agg.denseBest {
			agg.hasDense = true
			agg.denseBest = hit.Score
		}
		record(agg, hit)
	}
	for _, hit := range sparse {
		agg := get(hit.ArticleID)
		if agg.sparseCount >= chunkCap {
			continue
		}
		agg.sparseCount++
		if !agg.hasSparse || hit.Score > agg.sparseBest {
			agg.hasSparse = true
			agg.sparseBest = hit.Score
		}
		record(agg, hit)
	}

	denseNorm := normalizer(aggs, func(a *articleAgg) (float64, bool) { return a.denseBest, a.hasDense })
	sparseNorm := normalizer(aggs, func(a *articleAgg) (float64, bool) { return a.sparseBest, a.hasSparse })

	candidates := make([]Candidate, 0, len(order))
	for _, articleID := range order {
		agg := aggs[articleID]
		c := Candidate{
			ArticleID:  agg.articleID,
			BestChunk:  agg.bestChunk,
			ChunkSpans: agg.chunkSpans,
		}
		if agg.hasDense {
			c.Dense = denseNorm(agg.denseBest)
		}
		if agg.hasSparse {
			c.Sparse = sparseNorm(agg.sparseBest)
		}
		c.Blend = cfg.BlendDenseWeight*c.Dense + cfg.BlendSparseWeight*c.Sparse
		candidates = append(candidates, c)
	}

	// Ties keep first-seen order, which is modality rank order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Blend > candidates[j].Blend
	})

	keep := cfg.RetrieveKeep
	if keep < 1 {
		keep = 250
	}
	if len(candidates) > keep {
		candidates = candidates[:keep]
	}
	return candidates
}

// normalizer returns a min-max map of one modality's score range onto [0,1].
// A degenerate range (all scores equal) maps to 1 so a single-hit modality
// still contributes its full weight.
func normalizer(aggs map[int64]*articleAgg, score func(*articleAgg) (float64, bool)) func(float64) float64 {
	var lo, hi float64
	first := true
	for _, agg := range aggs {
		s, ok := score(agg)
		if !ok {
			continue
		}
		if first {
			lo, hi = s, s
			first = false
			continue
		}
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	if first || hi == lo {
		return func(float64) float64 { return 1 }
	}
	span := hi - lo
	return func(s float64) float64 { return (s - lo) / span }
}
