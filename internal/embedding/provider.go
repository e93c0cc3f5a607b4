// Package embedding maps text to fixed-dimension, unit-length vectors.
//
// Every Provider returns L2-normalised vectors so that cosine distances
// computed against vectors from different backends stay in the same range.
// Vectors produced by different providers are still not comparable in a
// meaningful way: switching providers requires a full re-sync.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// DefaultDimension is used when no dimension is configured.
const DefaultDimension = 128

// ErrDimensionMismatch is returned when a backend produces a vector of unexpected length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Provider generates embeddings for text.
type Provider interface {
	// Embed returns the embedding of text. Identical input yields identical
	// output as long as the provider configuration is unchanged.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the length of every vector returned by Embed.
	Dimension() int

	// Name identifies the backend and its configuration.
	Name() string
}

// ServedProvider is a Provider that may delegate to more than one backend.
// EmbedServed returns the vector together with the Name of the backend that
// produced it, so callers can label vectors with their real embedding space.
type ServedProvider interface {
	Provider
	EmbedServed(ctx context.Context, text string) ([]float32, string, error)
}

// EmbedServed embeds text with p and names the backend that produced the
// vector. For a single-backend provider that is p.Name().
func EmbedServed(ctx context.Context, p Provider, text string) ([]float32, string, error) {
	if sp, ok := p.(ServedProvider); ok {
		return sp.EmbedServed(ctx, text)
	}
	vec, err := p.Embed(ctx, text)
	if err != nil {
		return nil, "", err
	}
	return vec, p.Name(), nil
}

// Error reports a failure of an embedding backend.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Normalize performs L2 normalisation in place and returns v.
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, val := range v {
		norm += float64(val) * float64(val)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i, val := range v {
		v[i] = float32(float64(val) / norm)
	}
	return v
}

func isZero(v []float32) bool {
	for _, val := range v {
		if val != 0 {
			return false
		}
	}
	return true
}
