package rag

import (
	"math"
	"sort"

	"github.com/hunterwarburton/taxassist/internal/core"
)

// cosineDistance matches pgvector's <=> operator: 1 - cosine similarity.
// A zero vector is treated as maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// nearest sorts by ascending distance and keeps topK. Ties keep insertion order.
func nearest(matches []core.Match, topK int) core.RetrievalResult {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return core.RetrievalResult(matches)
}
