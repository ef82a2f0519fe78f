// Package ranker scores catalog vectors against a query by cosine
// similarity.
package ranker

import (
	"math"
	"sort"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	MinK = 1
	MaxK = 15
)

// Candidate is one catalog vector. A nil Vector means no embedding.
type Candidate struct {
	ID     uuid.UUID
	Vector []float32
}

type Result struct {
	ID         uuid.UUID
	Similarity float64
}

// MismatchFunc is notified for every candidate dropped because its
// length differs from the query.
type MismatchFunc func(id uuid.UUID, want, got int)

// ClampK bounds k to [MinK, MaxK].
func ClampK(k int) int {
	if k < MinK {
		return MinK
	}
	if k > MaxK {
		return MaxK
	}
	return k
}

// CosineSimilarity returns dot(a,b)/(|a||b|). It is 0 when either vector
// is zero or absent, and 0 for mismatched lengths.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
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
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(s) {
		return 0
	}
	return s
}

// TopK ranks candidates by descending similarity to query and returns at
// most ClampK(k) results. Candidates without a vector score 0 and sort
// after every scored candidate; equal scores keep input order.
// Candidates whose length differs from the query are excluded.
func TopK(query []float32, candidates []Candidate, k int, onMismatch MismatchFunc) []Result {
	k = ClampK(k)

	type scored struct {
		Result
		absent bool
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) == 0 {
			ranked = append(ranked, scored{Result: Result{ID: c.ID}, absent: true})
			continue
		}
		if len(c.Vector) != len(query) {
			log.WithFields(log.Fields{
				"product_id": c.ID,
				"want_dim":   len(query),
				"got_dim":    len(c.Vector),
			}).Warn("Skipping candidate with mismatched embedding dimension")
			if onMismatch != nil {
				onMismatch(c.ID, len(query), len(c.Vector))
			}
			continue
		}
		ranked = append(ranked, scored{Result: Result{ID: c.ID, Similarity: CosineSimilarity(query, c.Vector)}})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].absent != ranked[j].absent {
			return !ranked[i].absent
		}
		return ranked[i].Similarity > ranked[j].Similarity
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]Result, len(ranked))
	for i, r := range ranked {
		out[i] = r.Result
	}
	return out
}
