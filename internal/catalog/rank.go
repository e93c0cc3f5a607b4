package catalog

import (
	"fmt"
	"math"
	"sort"

	"github.com/radutopala/toolcat/internal/tools"
)

// ValidateVector checks that v has dim finite components.
func ValidateVector(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: got dimension %d, want %d", ErrInvalidVector, len(v), dim)
	}
	for i, val := range v {
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return fmt.Errorf("%w: non-finite component at index %d", ErrInvalidVector, i)
		}
	}
	return nil
}

// ValidateRecord checks the fields every backend relies on before writing.
func ValidateRecord(rec *tools.Record, dim int) error {
	if rec == nil || rec.Key == "" {
		return ErrInvalidRecord
	}
	return ValidateVector(rec.Embedding, dim)
}

// CosineDistance returns 1 - cosine similarity. Vectors of different length
// or zero vectors are treated as orthogonal.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1
	}

	return 1 - dotProduct/(math.Sqrt(normA)*math.Sqrt(normB))
}

// Rank filters candidates by platform, orders them by ascending cosine
// distance to q.Vector with ascending key as tie-break, and keeps the first q.K.
func Rank(candidates []*tools.Record, q Query) []Match {
	if q.K <= 0 {
		return []Match{}
	}

	matches := make([]Match, 0, len(candidates))
	for _, rec := range candidates {
		if !rec.EligibleFor(q.Platforms) {
			continue
		}
		matches = append(matches, Match{
			Record:   rec,
			Distance: CosineDistance(q.Vector, rec.Embedding),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Record.Key < matches[j].Record.Key
	})

	if len(matches) > q.K {
		matches = matches[:q.K]
	}
	return matches
}
