// Package sqlite implements the catalog store on a local SQLite database.
//
// Records live in a single keyed table; embeddings are stored as float32
// blobs. Platform filtering runs in SQL through json_each, cosine ranking of
// the filtered rows runs in Go.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/embedding"
	"github.com/radutopala/toolcat/internal/tools"
)

// toolColumns is the SELECT column list shared by every read query.
const toolColumns = `key, name, short_desc, platform, tags, meta, embedding,
	embedding_model, usage_count, created_at, updated_at`

// pragmas are applied to every connection by the driver.
const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// dsn builds a SQLite URI filename for path. The path is percent-escaped so
// '?', '#' and '%' in file names are not read as URI syntax.
func dsn(path string) string {
	u := url.URL{
		Scheme:   "file",
		Opaque:   (&url.URL{Path: path}).EscapedPath(),
		RawQuery: pragmas,
	}
	return u.String()
}

// Store implements catalog.Store using SQLite.
type Store struct {
	db     *sql.DB
	dim    int
	now    func() time.Time
	logger *slog.Logger

	// SQLite allows one writer at a time; writers queue here instead of on busy_timeout.
	writeMu sync.Mutex
}

var _ catalog.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path, applies migrations and
// checks that the stored embedding dimension matches dim.
func Open(ctx context.Context, path string, dim int, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		dim:    dim,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}

	if err := s.checkDimension(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("SQLite catalog store opened", "path", path, "dimension", dim)
	return s, nil
}

// checkDimension records the embedding dimension on first use and rejects a
// database created with a different one.
func (s *Store) checkDimension(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (name, value) VALUES ('embedding_dimension', ?) ON CONFLICT(name) DO NOTHING`,
		strconv.Itoa(s.dim),
	); err != nil {
		return fmt.Errorf("failed to record embedding dimension: %w", err)
	}

	var stored string
	if err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE name = 'embedding_dimension'`,
	).Scan(&stored); err != nil {
		return fmt.Errorf("failed to read embedding dimension: %w", err)
	}

	if stored != strconv.Itoa(s.dim) {
		return fmt.Errorf("catalog was built with embedding dimension %s, configured dimension is %d", stored, s.dim)
	}
	return nil
}

// Upsert inserts or updates rec in a single statement.
func (s *Store) Upsert(ctx context.Context, rec *tools.Record) error {
	if err := catalog.ValidateRecord(rec, s.dim); err != nil {
		key := ""
		if rec != nil {
			key = rec.Key
		}
		return &catalog.PersistenceError{Key: key, Err: err}
	}

	platformJSON, tagsJSON, metaJSON, err := encodeFields(rec)
	if err != nil {
		return &catalog.PersistenceError{Key: rec.Key, Err: err}
	}

	now := s.now().Format(time.RFC3339Nano)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var usage int64
	var createdAt, updatedAt string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO tools (
			key, name, short_desc, platform, tags, meta, embedding,
			embedding_model, usage_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			short_desc = excluded.short_desc,
			platform = excluded.platform,
			tags = excluded.tags,
			meta = excluded.meta,
			embedding = excluded.embedding,
			embedding_model = excluded.embedding_model,
			updated_at = excluded.updated_at
		RETURNING usage_count, created_at, updated_at`,
		rec.Key,
		rec.Name,
		rec.ShortDesc,
		platformJSON,
		tagsJSON,
		metaJSON,
		embedding.EncodeVector(rec.Embedding),
		rec.EmbeddingModel,
		now,
		now,
	).Scan(&usage, &createdAt, &updatedAt)
	if err != nil {
		return &catalog.PersistenceError{Key: rec.Key, Err: fmt.Errorf("upserting tool: %w", err)}
	}

	rec.UsageCount = usage
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return &catalog.PersistenceError{Key: rec.Key, Err: fmt.Errorf("parsing created_at: %w", err)}
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return &catalog.PersistenceError{Key: rec.Key, Err: fmt.Errorf("parsing updated_at: %w", err)}
	}

	return nil
}

// Search returns the closest eligible records to q.Vector.
func (s *Store) Search(ctx context.Context, q catalog.Query) ([]catalog.Match, error) {
	if err := catalog.ValidateVector(q.Vector, s.dim); err != nil {
		return nil, err
	}
	if q.K <= 0 {
		return []catalog.Match{}, nil
	}

	platforms := q.Platforms
	if platforms == nil {
		platforms = []string{}
	}
	filterJSON, err := json.Marshal(platforms)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal platform filter: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+toolColumns+`
		FROM tools
		WHERE ? = 0
		   OR json_array_length(platform) = 0
		   OR EXISTS (
		       SELECT 1 FROM json_each(tools.platform) p
		       WHERE p.value IN (SELECT value FROM json_each(?))
		   )`,
		len(platforms), string(filterJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	return catalog.Rank(candidates, q), nil
}

// Get returns the record stored under key.
func (s *Store) Get(ctx context.Context, key string) (*tools.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("get query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, catalog.ErrNotFound
	}
	return records[0], nil
}

// List returns every record ordered by key.
func (s *Store) List(ctx context.Context) ([]*tools.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+toolColumns+` FROM tools ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tools`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return n, nil
}

// IncrementUsage bumps usage_count for key.
func (s *Store) IncrementUsage(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE tools SET usage_count = usage_count + 1 WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("incrementing usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("incrementing usage: %w", err)
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// Dimension returns the embedding dimension enforced by the store.
func (s *Store) Dimension() int {
	return s.dim
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeFields(rec *tools.Record) (platform, tags, meta string, err error) {
	encode := func(v any) (string, error) {
		data, err := json.Marshal(v)
		return string(data), err
	}

	if platform, err = encode(nonNil(rec.Platform)); err != nil {
		return "", "", "", fmt.Errorf("encoding platform: %w", err)
	}
	if tags, err = encode(nonNil(rec.Tags)); err != nil {
		return "", "", "", fmt.Errorf("encoding tags: %w", err)
	}
	m := rec.Meta
	if m == nil {
		m = tools.Meta{}
	}
	if meta, err = encode(m); err != nil {
		return "", "", "", fmt.Errorf("encoding meta: %w", err)
	}
	return platform, tags, meta, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func scanRecords(rows *sql.Rows) ([]*tools.Record, error) {
	var out []*tools.Record
	for rows.Next() {
		var (
			rec                  tools.Record
			platform, tags, meta string
			blob                 []byte
			createdAt, updatedAt string
		)
		if err := rows.Scan(
			&rec.Key, &rec.Name, &rec.ShortDesc, &platform, &tags, &meta, &blob,
			&rec.EmbeddingModel, &rec.UsageCount, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := errors.Join(
			json.Unmarshal([]byte(platform), &rec.Platform),
			json.Unmarshal([]byte(tags), &rec.Tags),
			json.Unmarshal([]byte(meta), &rec.Meta),
		); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", rec.Key, err)
		}

		vec, err := embedding.DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding of %s: %w", rec.Key, err)
		}
		rec.Embedding = vec

		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at of %s: %w", rec.Key, err)
		}
		if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at of %s: %w", rec.Key, err)
		}

		out = append(out, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
