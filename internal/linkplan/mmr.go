package linkplan

import (
	"sort"
	"strings"
)

// Diversify runs maximal marginal relevance over reranked candidates:
// greedily pick the candidate maximizing
//
//	lambda*relevance - (1-lambda)*maxSimilarity(candidate, selected)
//
// until cfg.MMRK are selected. Relevance is the rerank score min-max
// normalized over the input; similarity is token Jaccard over best-chunk
// text. Ties resolve to the earlier (better-reranked) candidate, so the
// result is deterministic. Each selection also gets its stitched
// representative span for anchor scoring.
func Diversify(candidates []Candidate, cfg Config) []Candidate {
	k := cfg.MMRK
	if k < 1 {
		k = 12
	}
	if len(candidates) == 0 {
		return nil
	}

	lambda := cfg.MMRLambda
	relevance := normalizeRerank(candidates)
	tokens := make([]map[string]bool, len(candidates))
	for i, c := range candidates {
		tokens[i] = tokenSet(c.BestChunk)
	}

	selected := make([]Candidate, 0, k)
	selectedTokens := make([]map[string]bool, 0, k)
	used := make([]bool, len(candidates))

	for len(selected) < k {
		bestIdx := -1
		bestScore := 0.0
		for i := range candidates {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, st := range selectedTokens {
				if sim := jaccard(tokens[i], st); sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim
			if bestIdx < 0 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx < 0 {
			break
		}
		used[bestIdx] = true
		c := candidates[bestIdx]
		c.Span = stitchSpans(c.ChunkSpans, cfg.StitchGap)
		selected = append(selected, c)
		selectedTokens = append(selectedTokens, tokens[bestIdx])
	}
	return selected
}

// stitchSpans merges plain-text-adjacent chunk spans (gap at most stitchGap
// runes) and returns the widest merged region as the candidate's
// representative span. Non-adjacent chunks stay separate; only the best
// merged run is kept.
func stitchSpans(spans []Span, stitchGap int) Span {
	if len(spans) == 0 {
		return Span{}
	}
	if stitchGap < 0 {
		stitchGap = 0
	}

	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TextStart < ordered[j].TextStart
	})

	best := ordered[0]
	current := ordered[0]
	for _, s := range ordered[1:] {
		if s.TextStart <= current.TextEnd+stitchGap {
			if s.TextEnd > current.TextEnd {
				current.TextEnd = s.TextEnd
				current.Text = current.Text + " " + s.Text
			}
		} else {
			if current.TextEnd-current.TextStart > best.TextEnd-best.TextStart {
				best = current
			}
			current = s
		}
	}
	if current.TextEnd-current.TextStart > best.TextEnd-best.TextStart {
		best = current
	}
	return best
}

func normalizeRerank(candidates []Candidate) []float64 {
	lo, hi := candidates[0].Rerank, candidates[0].Rerank
	for _, c := range candidates[1:] {
		if c.Rerank < lo {
			lo = c.Rerank
		}
		if c.Rerank > hi {
			hi = c.Rerank
		}
	}
	out := make([]float64, len(candidates))
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, c := range candidates {
		out[i] = (c.Rerank - lo) / (hi - lo)
	}
	return out
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if len(f) > 1 {
			set[f] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	inter := 0
	for t := range small {
		if large[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
