// Package catalog defines the persistent tool catalog: a keyed table of tool
// records with embeddings that supports filtered nearest-neighbour search.
package catalog

import (
	"context"

	"github.com/radutopala/toolcat/internal/tools"
)

// Query describes a filtered similarity search.
type Query struct {
	Vector    []float32 // Query embedding, must match the store dimension
	Platforms []string  // Platform filter, empty matches every record
	K         int       // Maximum number of results, K <= 0 yields none
}

// Match is a search hit.
type Match struct {
	Record   *tools.Record
	Distance float64 // Cosine distance to the query, lower is closer
}

// Store is a catalog backend.
//
// Implementations must make Upsert a single atomic insert-or-update keyed on
// Record.Key: created_at and usage_count of an existing row are preserved,
// every other field and updated_at are overwritten. Concurrent upserts to the
// same key resolve last-write-wins.
type Store interface {
	// Upsert inserts or updates rec. On success rec.CreatedAt, rec.UpdatedAt
	// and rec.UsageCount reflect the stored row.
	Upsert(ctx context.Context, rec *tools.Record) error

	// Search returns at most q.K eligible records ordered by ascending cosine
	// distance, ties broken by ascending key.
	Search(ctx context.Context, q Query) ([]Match, error)

	// Get returns the record stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (*tools.Record, error)

	// List returns every record ordered by key.
	List(ctx context.Context) ([]*tools.Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// IncrementUsage bumps usage_count for key. It is the hook for execution
	// feedback and is never called by the query path.
	IncrementUsage(ctx context.Context, key string) error

	// Dimension returns the embedding dimension enforced by the store.
	Dimension() int

	// Close releases the underlying connection.
	Close() error
}
