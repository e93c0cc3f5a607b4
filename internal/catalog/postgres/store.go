// Package postgres implements the catalog store on PostgreSQL with the
// pgvector extension.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/tools"
)

// TableName is the table holding catalog records.
const TableName = "toolcat_tools"

// toolRow is the persisted form of a tools.Record.
type toolRow struct {
	Key            string          `gorm:"column:key;primaryKey"`
	Name           string          `gorm:"column:name;not null"`
	ShortDesc      string          `gorm:"column:short_desc;not null"`
	Platform       string          `gorm:"column:platform;type:jsonb;not null"`
	Tags           string          `gorm:"column:tags;type:jsonb;not null"`
	Meta           string          `gorm:"column:meta;type:jsonb;not null"`
	Embedding      pgvector.Vector `gorm:"column:embedding;not null"`
	EmbeddingModel string          `gorm:"column:embedding_model;not null"`
	UsageCount     int64           `gorm:"column:usage_count;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;not null"`
}

// TableName returns the table name
func (*toolRow) TableName() string {
	return TableName
}

type searchRow struct {
	Row      toolRow `gorm:"embedded"`
	Distance float64 `gorm:"column:distance"`
}

// Store implements catalog.Store on PostgreSQL.
type Store struct {
	db     *gorm.DB
	dim    int
	now    func() time.Time
	logger *slog.Logger
}

var _ catalog.Store = (*Store)(nil)

// Open connects to dsn, ensures the schema exists and verifies that the
// embedding column matches dim.
func Open(ctx context.Context, dsn string, dim int, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:  db,
		dim: dim,
		now: func() time.Time {
			// timestamptz keeps microseconds
			return time.Now().UTC().Truncate(time.Microsecond)
		},
		logger: logger,
	}

	if err := s.ensureSchema(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("PostgreSQL catalog store opened", "table", TableName, "dimension", dim)
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key             text PRIMARY KEY,
			name            text NOT NULL,
			short_desc      text NOT NULL,
			platform        jsonb NOT NULL DEFAULT '[]',
			tags            jsonb NOT NULL DEFAULT '[]',
			meta            jsonb NOT NULL DEFAULT '{}',
			embedding       vector(%d) NOT NULL,
			embedding_model text NOT NULL DEFAULT '',
			usage_count     bigint NOT NULL DEFAULT 0,
			created_at      timestamptz NOT NULL,
			updated_at      timestamptz NOT NULL
		)`, TableName, s.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_platform_idx ON %s USING gin (platform)`, TableName, TableName),
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to initialise schema: %w", err)
		}
	}

	var columnType string
	err := db.Raw(`SELECT format_type(atttypid, atttypmod) FROM pg_attribute
		WHERE attrelid = ?::regclass AND attname = 'embedding'`, TableName).Scan(&columnType).Error
	if err != nil {
		return fmt.Errorf("failed to inspect embedding column: %w", err)
	}
	if want := fmt.Sprintf("vector(%d)", s.dim); columnType != want {
		return fmt.Errorf("catalog was built with embedding column %s, configured dimension needs %s", columnType, want)
	}
	return nil
}

// Upsert inserts or updates rec with a single INSERT ... ON CONFLICT.
func (s *Store) Upsert(ctx context.Context, rec *tools.Record) error {
	if err := catalog.ValidateRecord(rec, s.dim); err != nil {
		key := ""
		if rec != nil {
			key = rec.Key
		}
		return &catalog.PersistenceError{Key: key, Err: err}
	}

	row, err := toRow(rec)
	if err != nil {
		return &catalog.PersistenceError{Key: rec.Key, Err: err}
	}
	now := s.now()
	row.CreatedAt = now
	row.UpdatedAt = now

	err = s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "short_desc", "platform", "tags", "meta",
				"embedding", "embedding_model", "updated_at",
			}),
		},
		clause.Returning{Columns: []clause.Column{
			{Name: "usage_count"}, {Name: "created_at"}, {Name: "updated_at"},
		}},
	).Create(row).Error
	if err != nil {
		return &catalog.PersistenceError{Key: rec.Key, Err: fmt.Errorf("upserting tool: %w", err)}
	}

	rec.UsageCount = row.UsageCount
	rec.CreatedAt = row.CreatedAt.UTC()
	rec.UpdatedAt = row.UpdatedAt.UTC()
	return nil
}

// Search ranks eligible records by cosine distance in SQL.
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

	// pgvector yields NaN for zero vectors; treat those as orthogonal.
	query := fmt.Sprintf(`SELECT *, COALESCE(NULLIF(embedding <=> ?, 'NaN'::float8), 1) AS distance
		FROM %s
		WHERE ? OR platform = '[]'::jsonb OR EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(platform) AS p(value)
			WHERE p.value IN (SELECT jsonb_array_elements_text(?::jsonb))
		)
		ORDER BY distance, key COLLATE "C"
		LIMIT ?`, TableName)

	var rows []searchRow
	err = s.db.WithContext(ctx).Raw(query,
		pgvector.NewVector(q.Vector),
		len(platforms) == 0,
		string(filterJSON),
		q.K,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}

	matches := make([]catalog.Match, 0, len(rows))
	for i := range rows {
		rec, err := fromRow(&rows[i].Row)
		if err != nil {
			return nil, err
		}
		matches = append(matches, catalog.Match{Record: rec, Distance: rows[i].Distance})
	}
	return matches, nil
}

// Get returns the record stored under key.
func (s *Store) Get(ctx context.Context, key string) (*tools.Record, error) {
	var row toolRow
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get query failed: %w", err)
	}
	return fromRow(&row)
}

// List returns every record ordered by key.
func (s *Store) List(ctx context.Context) ([]*tools.Record, error) {
	var rows []toolRow
	if err := s.db.WithContext(ctx).Order(`key COLLATE "C"`).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list query failed: %w", err)
	}

	out := make([]*tools.Record, 0, len(rows))
	for i := range rows {
		rec, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&toolRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return int(n), nil
}

// IncrementUsage bumps usage_count for key.
func (s *Store) IncrementUsage(ctx context.Context, key string) error {
	res := s.db.WithContext(ctx).Model(&toolRow{}).
		Where("key = ?", key).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("incrementing usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// Dimension returns the embedding dimension enforced by the store.
func (s *Store) Dimension() int {
	return s.dim
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(rec *tools.Record) (*toolRow, error) {
	platform := rec.Platform
	if platform == nil {
		platform = []string{}
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	meta := rec.Meta
	if meta == nil {
		meta = tools.Meta{}
	}

	platformJSON, err := json.Marshal(platform)
	if err != nil {
		return nil, fmt.Errorf("encoding platform: %w", err)
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encoding tags: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding meta: %w", err)
	}

	return &toolRow{
		Key:            rec.Key,
		Name:           rec.Name,
		ShortDesc:      rec.ShortDesc,
		Platform:       string(platformJSON),
		Tags:           string(tagsJSON),
		Meta:           string(metaJSON),
		Embedding:      pgvector.NewVector(rec.Embedding),
		EmbeddingModel: rec.EmbeddingModel,
	}, nil
}

func fromRow(row *toolRow) (*tools.Record, error) {
	rec := &tools.Record{
		Key:            row.Key,
		Name:           row.Name,
		ShortDesc:      row.ShortDesc,
		Embedding:      row.Embedding.Slice(),
		EmbeddingModel: row.EmbeddingModel,
		UsageCount:     row.UsageCount,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}

	if err := errors.Join(
		json.Unmarshal([]byte(row.Platform), &rec.Platform),
		json.Unmarshal([]byte(row.Tags), &rec.Tags),
		json.Unmarshal([]byte(row.Meta), &rec.Meta),
	); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", row.Key, err)
	}
	return rec, nil
}
