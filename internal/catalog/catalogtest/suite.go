// Package catalogtest provides a conformance suite shared by every catalog backend.
package catalogtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/tools"
)

// Dimension is the embedding dimension used by the suite.
const Dimension = 4

// Factory opens an empty store of the given dimension.
type Factory func(t *testing.T, dim int) catalog.Store

// StoreSuite exercises the catalog.Store contract.
type StoreSuite struct {
	suite.Suite
	factory Factory
	ctx     context.Context
	store   catalog.Store
}

// Run executes the conformance suite against stores created by factory.
func Run(t *testing.T, factory Factory) {
	suite.Run(t, &StoreSuite{factory: factory})
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.factory(s.T(), Dimension)
}

func (s *StoreSuite) TearDownTest() {
	_ = s.store.Close()
}

// Record builds a valid record for tests.
func Record(key string, platform []string, vec ...float32) *tools.Record {
	if len(vec) == 0 {
		vec = []float32{1, 0, 0, 0}
	}
	return &tools.Record{
		Key:            key,
		Name:           key,
		ShortDesc:      "description of " + key,
		Platform:       tools.NormalizeSet(platform),
		Tags:           []string{"test"},
		Meta:           tools.Meta{"command": key},
		Embedding:      vec,
		EmbeddingModel: "test-model",
	}
}

var ignoreAudit = cmpopts.IgnoreFields(tools.Record{}, "CreatedAt", "UpdatedAt", "UsageCount")

func (s *StoreSuite) TestUpsertCreates() {
	rec := Record("linux.grep", []string{"linux"})
	require.NoError(s.T(), s.store.Upsert(s.ctx, rec))

	require.False(s.T(), rec.CreatedAt.IsZero())
	require.True(s.T(), rec.CreatedAt.Equal(rec.UpdatedAt), "new record has created_at == updated_at")
	require.Zero(s.T(), rec.UsageCount)

	got, err := s.store.Get(s.ctx, "linux.grep")
	require.NoError(s.T(), err)
	if diff := cmp.Diff(rec, got, ignoreAudit, cmpopts.EquateEmpty()); diff != "" {
		s.T().Fatalf("stored record mismatch (-want +got):\n%s", diff)
	}
	require.True(s.T(), rec.CreatedAt.Equal(got.CreatedAt))
}

func (s *StoreSuite) TestUpsertIsIdempotent() {
	rec := Record("linux.grep", []string{"linux"})
	rec.Meta = tools.Meta{"command": "grep", "args": []any{"-r"}, "timeout": 30.0}
	require.NoError(s.T(), s.store.Upsert(s.ctx, rec))
	first, err := s.store.Get(s.ctx, rec.Key)
	require.NoError(s.T(), err)

	again := Record("linux.grep", []string{"linux"})
	again.Meta = tools.Meta{"command": "grep", "args": []any{"-r"}, "timeout": 30.0}
	require.NoError(s.T(), s.store.Upsert(s.ctx, again))
	second, err := s.store.Get(s.ctx, rec.Key)
	require.NoError(s.T(), err)

	count, err := s.store.Count(s.ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, count)

	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(tools.Record{}, "UpdatedAt")); diff != "" {
		s.T().Fatalf("re-upsert changed more than updated_at (-first +second):\n%s", diff)
	}
	require.False(s.T(), second.UpdatedAt.Before(first.UpdatedAt))
}

func (s *StoreSuite) TestUpdatePreservesCreatedAtAndUsage() {
	rec := Record("linux.grep", []string{"linux"})
	require.NoError(s.T(), s.store.Upsert(s.ctx, rec))
	created := rec.CreatedAt

	require.NoError(s.T(), s.store.IncrementUsage(s.ctx, rec.Key))
	require.NoError(s.T(), s.store.IncrementUsage(s.ctx, rec.Key))

	changed := Record("linux.grep", []string{"linux", "bsd"}, 0, 1, 0, 0)
	changed.Name = "grep (GNU)"
	changed.Tags = []string{"search", "text"}
	require.NoError(s.T(), s.store.Upsert(s.ctx, changed))

	got, err := s.store.Get(s.ctx, rec.Key)
	require.NoError(s.T(), err)
	require.Equal(s.T(), "grep (GNU)", got.Name)
	require.Equal(s.T(), []string{"bsd", "linux"}, got.Platform)
	require.Equal(s.T(), []string{"search", "text"}, got.Tags)
	require.Equal(s.T(), []float32{0, 1, 0, 0}, got.Embedding)
	require.Equal(s.T(), int64(2), got.UsageCount)
	require.True(s.T(), created.Equal(got.CreatedAt), "created_at must be preserved")
	require.False(s.T(), got.UpdatedAt.Before(created))
	require.Equal(s.T(), int64(2), changed.UsageCount, "upsert reports the stored usage count")
}

func (s *StoreSuite) TestUpsertRejectsMalformedVector() {
	rec := Record("bad.vector", nil, 1, 0)
	err := s.store.Upsert(s.ctx, rec)

	var perr *catalog.PersistenceError
	require.ErrorAs(s.T(), err, &perr)
	require.Equal(s.T(), "bad.vector", perr.Key)
	require.ErrorIs(s.T(), err, catalog.ErrInvalidVector)

	count, err := s.store.Count(s.ctx)
	require.NoError(s.T(), err)
	require.Zero(s.T(), count)
}

func (s *StoreSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "missing.tool")
	require.ErrorIs(s.T(), err, catalog.ErrNotFound)
	require.ErrorIs(s.T(), s.store.IncrementUsage(s.ctx, "missing.tool"), catalog.ErrNotFound)
}

func (s *StoreSuite) TestListOrderedByKey() {
	for _, key := range []string{"b.tool", "c.tool", "a.tool"} {
		require.NoError(s.T(), s.store.Upsert(s.ctx, Record(key, nil)))
	}

	all, err := s.store.List(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), all, 3)
	require.Equal(s.T(), "a.tool", all[0].Key)
	require.Equal(s.T(), "c.tool", all[2].Key)
}

func (s *StoreSuite) TestSearchEmptyCatalog() {
	matches, err := s.store.Search(s.ctx, catalog.Query{Vector: []float32{1, 0, 0, 0}, K: 5})
	require.NoError(s.T(), err)
	require.Empty(s.T(), matches)
}

func (s *StoreSuite) seedPlatforms() {
	require.NoError(s.T(), s.store.Upsert(s.ctx, Record("linux.grep", []string{"linux"}, 1, 0, 0, 0)))
	require.NoError(s.T(), s.store.Upsert(s.ctx, Record("windows.netsh", []string{"windows"}, 1, 0, 0, 0)))
	require.NoError(s.T(), s.store.Upsert(s.ctx, Record("docker.ps", []string{"docker"}, 0, 1, 0, 0)))
	require.NoError(s.T(), s.store.Upsert(s.ctx, Record("docker.logs", []string{"docker", "podman"}, 0, 0, 1, 0)))
}

func (s *StoreSuite) TestSearchPlatformFilter() {
	s.seedPlatforms()

	matches, err := s.store.Search(s.ctx, catalog.Query{
		Vector:    []float32{1, 0, 0, 0},
		Platforms: []string{"docker"},
		K:         5,
	})
	require.NoError(s.T(), err)
	require.Len(s.T(), matches, 2, "only eligible records are returned, no padding")
	for _, m := range matches {
		require.NotEqual(s.T(), "windows.netsh", m.Record.Key)
		require.NotEqual(s.T(), "linux.grep", m.Record.Key)
	}
}

func (s *StoreSuite) TestSearchUniversalRecordsAlwaysEligible() {
	s.seedPlatforms()
	require.NoError(s.T(), s.store.Upsert(s.ctx, Record("any.echo", nil, 0, 0, 0, 1)))

	matches, err := s.store.Search(s.ctx, catalog.Query{
		Vector:    []float32{0, 0, 0, 1},
		Platforms: []string{"windows"},
		K:         5,
	})
	require.NoError(s.T(), err)
	require.Len(s.T(), matches, 2)
	require.Equal(s.T(), "any.echo", matches[0].Record.Key)
	require.InDelta(s.T(), 0.0, matches[0].Distance, 1e-6)
	require.Equal(s.T(), "windows.netsh", matches[1].Record.Key)
}

func (s *StoreSuite) TestSearchNoEligibleCandidates() {
	s.seedPlatforms()

	matches, err := s.store.Search(s.ctx, catalog.Query{
		Vector:    []float32{1, 0, 0, 0},
		Platforms: []string{"macos"},
		K:         5,
	})
	require.NoError(s.T(), err)
	require.Empty(s.T(), matches, "must not fall back to an unfiltered search")
}

func (s *StoreSuite) TestSearchOrderingAndTieBreak() {
	s.seedPlatforms()

	matches, err := s.store.Search(s.ctx, catalog.Query{Vector: []float32{1, 0, 0, 0}, K: 3})
	require.NoError(s.T(), err)
	require.Len(s.T(), matches, 3)
	// linux.grep and windows.netsh are equidistant; key order decides
	require.Equal(s.T(), "linux.grep", matches[0].Record.Key)
	require.Equal(s.T(), "windows.netsh", matches[1].Record.Key)
	require.LessOrEqual(s.T(), matches[1].Distance, matches[2].Distance)
}

func (s *StoreSuite) TestSearchNonPositiveK() {
	s.seedPlatforms()

	for _, k := range []int{0, -1} {
		matches, err := s.store.Search(s.ctx, catalog.Query{Vector: []float32{1, 0, 0, 0}, K: k})
		require.NoError(s.T(), err)
		require.Empty(s.T(), matches)
	}
}

func (s *StoreSuite) TestSearchRejectsWrongDimension() {
	_, err := s.store.Search(s.ctx, catalog.Query{Vector: []float32{1, 0}, K: 1})
	require.ErrorIs(s.T(), err, catalog.ErrInvalidVector)
}

func (s *StoreSuite) TestConcurrentUpserts() {
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.NoError(s.store.Upsert(s.ctx, Record(fmt.Sprintf("tool.%02d", i), nil)))
		}()
		go func() {
			defer wg.Done()
			s.NoError(s.store.Upsert(s.ctx, Record("shared.key", nil)))
		}()
	}
	wg.Wait()

	count, err := s.store.Count(s.ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 17, count)
}

func (s *StoreSuite) TestDimension() {
	require.Equal(s.T(), Dimension, s.store.Dimension())
}
