package catalog

import (
	"math"
	"testing"

	"github.com/radutopala/toolcat/internal/tools"
	"github.com/stretchr/testify/require"
)

func TestCosineDistance(t *testing.T) {
	require.InDelta(t, 0.0, CosineDistance([]float32{1, 0, 0}, []float32{1, 0, 0}), 1e-9, "identical")
	require.InDelta(t, 1.0, CosineDistance([]float32{1, 0, 0}, []float32{0, 1, 0}), 1e-9, "orthogonal")
	require.InDelta(t, 2.0, CosineDistance([]float32{1, 0, 0}, []float32{-1, 0, 0}), 1e-9, "opposite")
	require.Equal(t, 1.0, CosineDistance([]float32{1, 0}, []float32{1, 0, 0}), "different lengths")
	require.Equal(t, 1.0, CosineDistance([]float32{0, 0, 0}, []float32{1, 0, 0}), "zero vector")
}

func TestValidateVector(t *testing.T) {
	require.NoError(t, ValidateVector([]float32{1, 0}, 2))
	require.ErrorIs(t, ValidateVector([]float32{1}, 2), ErrInvalidVector)

	nan := float32(math.NaN())
	require.ErrorIs(t, ValidateVector([]float32{nan, 0}, 2), ErrInvalidVector)
	require.ErrorIs(t, ValidateRecord(&tools.Record{Embedding: []float32{1, 0}}, 2), ErrInvalidRecord)
}

func TestRank(t *testing.T) {
	records := []*tools.Record{
		{Key: "linux.grep", Platform: []string{"linux"}, Embedding: []float32{1, 0}},
		{Key: "windows.netsh", Platform: []string{"windows"}, Embedding: []float32{1, 0}},
		{Key: "docker.ps", Platform: []string{"docker"}, Embedding: []float32{0.6, 0.8}},
		{Key: "any.echo", Embedding: []float32{0, 1}},
		{Key: "any.cat", Embedding: []float32{0, 1}},
	}
	query := []float32{1, 0}

	t.Run("no filter orders by distance then key", func(t *testing.T) {
		matches := Rank(records, Query{Vector: query, K: 10})
		require.Equal(t, []string{"linux.grep", "windows.netsh", "docker.ps", "any.cat", "any.echo"}, keys(matches))
	})

	t.Run("platform filter keeps universal records", func(t *testing.T) {
		matches := Rank(records, Query{Vector: query, Platforms: []string{"docker"}, K: 5})
		require.Equal(t, []string{"docker.ps", "any.cat", "any.echo"}, keys(matches))
	})

	t.Run("k limits results", func(t *testing.T) {
		require.Len(t, Rank(records, Query{Vector: query, K: 2}), 2)
	})

	t.Run("k <= 0 yields nothing", func(t *testing.T) {
		require.Empty(t, Rank(records, Query{Vector: query, K: 0}))
		require.Empty(t, Rank(records, Query{Vector: query, K: -3}))
	})

	t.Run("no eligible candidates", func(t *testing.T) {
		only := records[:2]
		require.Empty(t, Rank(only, Query{Vector: query, Platforms: []string{"docker"}, K: 5}))
	})
}

func keys(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Record.Key
	}
	return out
}
