// Package memory implements an in-memory catalog store.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/tools"
)

// Store keeps records in a map guarded by a RWMutex. It is used for tests and
// for ephemeral catalogs that are rebuilt on every start.
type Store struct {
	mu      sync.RWMutex
	records map[string]*tools.Record
	dim     int
	closed  bool
	now     func() time.Time
	logger  *slog.Logger
}

var _ catalog.Store = (*Store)(nil)

// New creates an empty in-memory store for embeddings of the given dimension.
func New(dim int, logger *slog.Logger) *Store {
	return &Store{
		records: make(map[string]*tools.Record),
		dim:     dim,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// Upsert inserts or updates rec.
func (s *Store) Upsert(_ context.Context, rec *tools.Record) error {
	if err := catalog.ValidateRecord(rec, s.dim); err != nil {
		return &catalog.PersistenceError{Key: keyOf(rec), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &catalog.PersistenceError{Key: rec.Key, Err: catalog.ErrClosed}
	}

	now := s.now()
	stored := rec.Clone()
	stored.UpdatedAt = now
	if existing, ok := s.records[rec.Key]; ok {
		stored.CreatedAt = existing.CreatedAt
		stored.UsageCount = existing.UsageCount
	} else {
		stored.CreatedAt = now
		stored.UsageCount = 0
	}
	s.records[rec.Key] = stored

	rec.CreatedAt = stored.CreatedAt
	rec.UpdatedAt = stored.UpdatedAt
	rec.UsageCount = stored.UsageCount

	s.logger.Debug("Upserted record", "key", rec.Key)
	return nil
}

// Search finds records semantically similar to the query vector.
func (s *Store) Search(_ context.Context, q catalog.Query) ([]catalog.Match, error) {
	if err := catalog.ValidateVector(q.Vector, s.dim); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, catalog.ErrClosed
	}

	candidates := make([]*tools.Record, 0, len(s.records))
	for _, rec := range s.records {
		candidates = append(candidates, rec)
	}

	matches := catalog.Rank(candidates, q)
	for i := range matches {
		matches[i].Record = matches[i].Record.Clone()
	}
	return matches, nil
}

// Get returns the record stored under key.
func (s *Store) Get(_ context.Context, key string) (*tools.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, catalog.ErrClosed
	}

	rec, ok := s.records[key]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns every record ordered by key.
func (s *Store) List(_ context.Context) ([]*tools.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, catalog.ErrClosed
	}

	out := make([]*tools.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, catalog.ErrClosed
	}
	return len(s.records), nil
}

// IncrementUsage bumps the usage counter of key.
func (s *Store) IncrementUsage(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return catalog.ErrClosed
	}

	rec, ok := s.records[key]
	if !ok {
		return catalog.ErrNotFound
	}
	rec.UsageCount++
	return nil
}

// Dimension returns the embedding dimension enforced by the store.
func (s *Store) Dimension() int {
	return s.dim
}

// Close marks the store closed. Records are dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = nil
	return nil
}

func keyOf(rec *tools.Record) string {
	if rec == nil {
		return ""
	}
	return rec.Key
}
