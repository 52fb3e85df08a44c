package linkplan

import (
	"math"
	"testing"

	"horse.fit/crosslink/internal/index"
)

func testConfig() Config {
	return Config{
		MaxLinksPerArticle:    3,
		MaxLinksPerSection:    1,
		BootstrapMinPublished: 50,
		TopKDense:             200,
		TopKSparse:            200,
		BlendDenseWeight:      0.65,
		BlendSparseWeight:     0.35,
		RetrieveKeep:          250,
		RerankKeep:            40,
		MMRLambda:             0.3,
		MMRK:                  12,
		AnchorMinWords:        3,
		AnchorMaxWords:        7,
		PerArticleChunkCap:    3,
		StitchGap:             64,
	}
}

func TestHybridRetrieve_BlendsNormalizedScores(t *testing.T) {
	t.Parallel()

	dense := []index.ChunkHit{
		{ArticleID: 1, ChunkID: 11, Score: 0.9, Text: "one"},
		{ArticleID: 2, ChunkID: 21, Score: 0.5, Text: "two"},
	}
	sparse := []index.ChunkHit{
		{ArticleID: 2, ChunkID: 22, Score: 10.0, Text: "two sparse"},
		{ArticleID: 3, ChunkID: 31, Score: 2.0, Text: "three"},
	}

	candidates := HybridRetrieve(dense, sparse, testConfig())
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}

	// Dense range [0.5,0.9] normalizes article 1 to 1.0 and article 2 to
	// 0.0; sparse range [2,10] normalizes article 2 to 1.0, article 3 to
	// 0.0. Blend weights then order 1, 2, 3.
	if candidates[0].ArticleID != 1 || candidates[1].ArticleID != 2 || candidates[2].ArticleID != 3 {
		t.Fatalf("unexpected order: %d, %d, %d",
			candidates[0].ArticleID, candidates[1].ArticleID, candidates[2].ArticleID)
	}
	if math.Abs(candidates[0].Blend-0.65) > 1e-9 {
		t.Fatalf("article 1 blend: want 0.65, got %f", candidates[0].Blend)
	}
	if math.Abs(candidates[1].Blend-0.35) > 1e-9 {
		t.Fatalf("article 2 blend: want 0.35, got %f", candidates[1].Blend)
	}
}

func TestHybridRetrieve_PerArticleChunkCap(t *testing.T) {
	t.Parallel()

	dense := []index.ChunkHit{
		{ArticleID: 1, ChunkID: 1, Score: 0.9, Text: "a", TextStart: 0, TextEnd: 10},
		{ArticleID: 1, ChunkID: 2, Score: 0.8, Text: "b", TextStart: 10, TextEnd: 20},
		{ArticleID: 1, ChunkID: 3, Score: 0.7, Text: "c", TextStart: 20, TextEnd: 30},
		{ArticleID: 1, ChunkID: 4, Score: 0.6, Text: "d", TextStart: 30, TextEnd: 40},
		{ArticleID: 1, ChunkID: 5, Score: 0.5, Text: "e", TextStart: 40, TextEnd: 50},
	}

	candidates := HybridRetrieve(dense, nil, testConfig())
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if got := len(candidates[0].ChunkSpans); got != 3 {
		t.Fatalf("expected chunk cap of 3, got %d contributing chunks", got)
	}
}

func TestHybridRetrieve_TruncatesToKeep(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RetrieveKeep = 5

	dense := make([]index.ChunkHit, 0, 20)
	for i := 0; i < 20; i++ {
		dense = append(dense, index.ChunkHit{
			ArticleID: int64(i + 1),
			ChunkID:   int64(100 + i),
			Score:     float64(20 - i),
			Text:      "chunk",
		})
	}

	candidates := HybridRetrieve(dense, nil, cfg)
	if len(candidates) != 5 {
		t.Fatalf("expected truncation to 5, got %d", len(candidates))
	}
	if candidates[0].ArticleID != 1 {
		t.Fatalf("expected best-scored article first, got %d", candidates[0].ArticleID)
	}
}

func TestDiversify_PenalizesRedundancy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MMRK = 2
	candidates := []Candidate{
		{ArticleID: 1, Rerank: 1.0, BestChunk: "alpha beta gamma delta"},
		{ArticleID: 2, Rerank: 0.9, BestChunk: "alpha beta gamma delta"},
		{ArticleID: 3, Rerank: 0.5, BestChunk: "omega psi chi phi"},
	}

	selected := Diversify(candidates, cfg)
	if len(selected) != 2 {
		t.Fatalf("expected 2 selections, got %d", len(selected))
	}
	if selected[0].ArticleID != 1 {
		t.Fatalf("most relevant candidate must be selected first, got %d", selected[0].ArticleID)
	}
	// Article 2 duplicates article 1's text; the dissimilar article 3 wins
	// the second slot despite lower relevance.
	if selected[1].ArticleID != 3 {
		t.Fatalf("expected diversity pick 3, got %d", selected[1].ArticleID)
	}
}

func TestDiversify_Deterministic(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	candidates := []Candidate{
		{ArticleID: 1, Rerank: 0.7, BestChunk: "one common text"},
		{ArticleID: 2, Rerank: 0.7, BestChunk: "two common text"},
		{ArticleID: 3, Rerank: 0.7, BestChunk: "three common text"},
	}

	first := Diversify(candidates, cfg)
	second := Diversify(candidates, cfg)
	if len(first) != len(second) {
		t.Fatalf("non-deterministic selection size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ArticleID != second[i].ArticleID {
			t.Fatalf("non-deterministic order at %d: %d vs %d", i, first[i].ArticleID, second[i].ArticleID)
		}
	}
	if first[0].ArticleID != 1 {
		t.Fatalf("tie must keep original rank order, got %d first", first[0].ArticleID)
	}
}

func TestStitchSpans_MergesAdjacent(t *testing.T) {
	t.Parallel()

	spans := []Span{
		{TextStart: 110, TextEnd: 200, Text: "second"},
		{TextStart: 0, TextEnd: 100, Text: "first"},
		{TextStart: 500, TextEnd: 520, Text: "far away"},
	}

	merged := stitchSpans(spans, 64)
	if merged.TextStart != 0 || merged.TextEnd != 200 {
		t.Fatalf("expected merged span [0,200), got [%d,%d)", merged.TextStart, merged.TextEnd)
	}

	// A zero gap tolerance keeps them apart; the widest span wins.
	separate := stitchSpans(spans, 0)
	if separate.TextStart != 0 || separate.TextEnd != 100 {
		t.Fatalf("expected widest unmerged span [0,100), got [%d,%d)", separate.TextStart, separate.TextEnd)
	}
}
