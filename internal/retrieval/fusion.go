package retrieval

import (
	"sort"

	"tabula/internal/models"
)

// ReciprocalRankFusion combines ranked result lists from several queries into
// a single ranking.
//
// Each document scores sum(1 / (k + rank_i)) over the lists it appears in,
// with rank starting at 1. Scores need no normalization across queries, which
// is what makes the method robust when per-query similarity scales differ.
// The output is deterministic: equal scores are ordered by record id, so the
// fused ranking does not depend on the order the input lists arrive in.
func ReciprocalRankFusion(resultsPerQuery [][]models.ContextItem, k int) []models.ContextItem {
	scores := make(map[string]float64)
	best := make(map[string]models.ContextItem)

	for _, results := range resultsPerQuery {
		for rank, item := range results {
			id := item.Record.ID
			scores[id] += 1.0 / float64(k+rank+1)

			// Keep the copy with the highest original similarity so the
			// fused item carries the most complete record.
			if prev, ok := best[id]; !ok || item.Score > prev.Score {
				best[id] = item
			}
		}
	}

	fused := make([]models.ContextItem, 0, len(scores))
	for id, score := range scores {
		item := best[id]
		item.Score = score
		fused = append(fused, item)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Record.ID < fused[j].Record.ID
	})
	return fused
}
