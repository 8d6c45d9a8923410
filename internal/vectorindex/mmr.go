package vectorindex

import "math"

// MaxMarginalRelevance picks up to k candidates that are similar to query but
// not to each other. lambda weighs relevance against diversity: 1 keeps the
// similarity order, 0 maximizes diversity. Candidates need their embeddings.
func MaxMarginalRelevance(query []float32, candidates []Hit, k int, lambda float64) []Hit {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = float64(Cosine(query, c.Embedding))
	}

	// redundancy[i] is the highest similarity of candidate i to anything
	// selected so far.
	redundancy := make([]float64, len(candidates))
	for i := range redundancy {
		redundancy[i] = math.Inf(-1)
	}

	used := make([]bool, len(candidates))
	selected := make([]Hit, 0, k)
	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			score := lambda * relevance[i]
			if len(selected) > 0 {
				score -= (1 - lambda) * redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}

		used[best] = true
		selected = append(selected, candidates[best])
		for i := range candidates {
			if !used[i] {
				redundancy[i] = math.Max(redundancy[i], float64(Cosine(candidates[i].Embedding, candidates[best].Embedding)))
			}
		}
	}
	return selected
}
