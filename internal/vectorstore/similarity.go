package vectorstore

import (
	"math"
	"sort"

	"docrag-go/internal/model"
)

// CosineSimilarity returns dot(a,b)/(|a||b|) computed in float64. It returns
// 0 when the lengths differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// finalize drops results below the threshold or below zero, sorts the rest
// best first and truncates to the requested count.
func finalize(results []model.SearchResult, q model.SearchQuery) []model.SearchResult {
	kept := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity < 0 || r.Similarity < q.Threshold {
			continue
		}
		if q.UserID != "" && r.Metadata.UserID != q.UserID {
			continue
		}
		if r.Similarity > 1 {
			r.Similarity = 1
		}
		kept = append(kept, r)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Similarity > kept[j].Similarity })
	if q.Count > 0 && len(kept) > q.Count {
		kept = kept[:q.Count]
	}
	return kept
}
