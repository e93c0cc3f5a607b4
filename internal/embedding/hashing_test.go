package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type HashingProviderTestSuite struct {
	suite.Suite
	ctx      context.Context
	provider *HashingProvider
}

func TestHashingProviderTestSuite(t *testing.T) {
	suite.Run(t, new(HashingProviderTestSuite))
}

func (s *HashingProviderTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.provider = NewHashingProvider(128)
}

func (s *HashingProviderTestSuite) embed(text string) []float32 {
	vec, err := s.provider.Embed(s.ctx, text)
	require.NoError(s.T(), err)
	return vec
}

func (s *HashingProviderTestSuite) TestDeterministic() {
	a := s.embed("list running processes")
	b := s.embed("list running processes")
	require.Equal(s.T(), a, b, "Identical input must produce identical vectors")

	// A fresh provider with the same configuration agrees too
	c, err := NewHashingProvider(128).Embed(s.ctx, "list running processes")
	require.NoError(s.T(), err)
	require.Equal(s.T(), a, c)
}

func (s *HashingProviderTestSuite) TestDimensionAndNorm() {
	for _, text := range []string{"grep files", "", "!!!", "a the of"} {
		vec := s.embed(text)
		require.Len(s.T(), vec, 128)
		require.InDelta(s.T(), 1.0, l2(vec), 1e-5, "vector for %q must be unit length", text)
	}
}

func (s *HashingProviderTestSuite) TestDefaultDimension() {
	require.Equal(s.T(), DefaultDimension, NewHashingProvider(0).Dimension())
}

func (s *HashingProviderTestSuite) TestSharedWordsAreCloser() {
	query := s.embed("list docker containers")
	related := s.embed("docker ps: list containers")
	unrelated := s.embed("configure windows firewall rules")

	require.Greater(s.T(), dot(query, related), dot(query, unrelated))
}

func (s *HashingProviderTestSuite) TestDifferentTextsDiffer() {
	require.NotEqual(s.T(), s.embed("grep"), s.embed("netsh"))
	require.NotEqual(s.T(), s.embed(""), s.embed("?"))
}

func (s *HashingProviderTestSuite) TestName() {
	require.Equal(s.T(), "hash-blake3-128", s.provider.Name())
}

func l2(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
