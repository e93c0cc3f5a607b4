// Package catalogsync drives descriptor records through embedding into the
// catalog store and reports a per-run summary.
package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/descriptor"
	"github.com/radutopala/toolcat/internal/embedding"
	"github.com/radutopala/toolcat/internal/tools"
)

// DefaultConcurrency is the number of records embedded and written at once.
const DefaultConcurrency = 4

// Record actions reported in the summary.
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionWouldWrite = "would-write"
)

// RecordResult previews what a run wrote, or would write, for one record.
type RecordResult struct {
	Source    string     `json:"source,omitempty"`
	Key       string     `json:"key"`
	Name      string     `json:"name"`
	ShortDesc string     `json:"short_desc"`
	Platform  []string   `json:"platform"`
	Tags      []string   `json:"tags"`
	Meta      tools.Meta `json:"meta"`
	Dimension int        `json:"embedding_dimension"`
	Provider  string     `json:"embedding_model"`
	Action    string     `json:"action"`
}

// Failure is a source or record that did not make it into the catalog.
type Failure struct {
	Source string `json:"source,omitempty"`
	Key    string `json:"key,omitempty"`
	Err    error  `json:"-"`
}

// MarshalJSON renders Err as a string.
func (f Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Source string `json:"source,omitempty"`
		Key    string `json:"key,omitempty"`
		Error  string `json:"error"`
	}{f.Source, f.Key, msg})
}

// Summary aggregates the outcome of one sync run.
type Summary struct {
	RunID     string         `json:"run_id"`
	DryRun    bool           `json:"dry_run"`
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Failures  []Failure      `json:"failures"`
	Results   []RecordResult `json:"results"`
}

// Failed returns the number of failed items.
func (s *Summary) Failed() int {
	return len(s.Failures)
}

// ExitCode is 0 when every item succeeded and 1 otherwise.
func (s *Summary) ExitCode() int {
	if s.Failed() > 0 {
		return 1
	}
	return 0
}

// Synchronizer upserts batches of records.
type Synchronizer struct {
	provider    embedding.Provider
	store       catalog.Store
	concurrency int
	logger      *slog.Logger
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithConcurrency sets how many records are processed at once.
func WithConcurrency(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a Synchronizer. store may be nil when only dry runs are made.
func New(provider embedding.Provider, store catalog.Store, logger *slog.Logger, opts ...Option) (*Synchronizer, error) {
	if store != nil && store.Dimension() != provider.Dimension() {
		return nil, fmt.Errorf("embedding provider %s produces %d dimensions, store expects %d: %w",
			provider.Name(), provider.Dimension(), store.Dimension(), embedding.ErrDimensionMismatch)
	}

	s := &Synchronizer{
		provider:    provider,
		store:       store,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run syncs the records of a load and folds its failures into the summary.
func (s *Synchronizer) Run(ctx context.Context, res *descriptor.Result, dryRun bool) *Summary {
	items := make([]item, len(res.Entries))
	for i, e := range res.Entries {
		items[i] = item{source: e.Source, record: e.Record}
	}

	loadFailures := make([]Failure, 0, len(res.Failures))
	for _, f := range res.Failures {
		loadFailures = append(loadFailures, Failure{Source: f.Source, Err: f.Err})
	}

	return s.run(ctx, items, loadFailures, dryRun)
}

// SyncAll embeds and upserts records. In dry-run mode nothing is written and
// each result carries ActionWouldWrite.
func (s *Synchronizer) SyncAll(ctx context.Context, records []*tools.Record, dryRun bool) *Summary {
	items := make([]item, len(records))
	for i, rec := range records {
		items[i] = item{record: rec}
	}
	return s.run(ctx, items, nil, dryRun)
}

type item struct {
	source string
	record *tools.Record
}

type outcome struct {
	result *RecordResult
	err    error
}

func (s *Synchronizer) run(ctx context.Context, items []item, failures []Failure, dryRun bool) *Summary {
	summary := &Summary{
		RunID:     uuid.NewString(),
		DryRun:    dryRun,
		Attempted: len(items) + len(failures),
		Failures:  failures,
		Results:   []RecordResult{},
	}
	if summary.Failures == nil {
		summary.Failures = []Failure{}
	}

	logger := s.logger.With("run_id", summary.RunID)
	logger.Info("Sync started", "records", len(items), "dry_run", dryRun, "concurrency", s.concurrency)

	outcomes := make([]outcome, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, it := range items {
		g.Go(func() error {
			// per-record failures never cancel the group
			res, err := s.process(gctx, it, dryRun)
			outcomes[i] = outcome{result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		if o.err != nil {
			rec := items[i].record
			key := ""
			if rec != nil {
				key = rec.Key
			}
			logger.Error("Failed to sync record", "source", items[i].source, "key", key, "error", o.err)
			summary.Failures = append(summary.Failures, Failure{Source: items[i].source, Key: key, Err: o.err})
			continue
		}
		summary.Succeeded++
		summary.Results = append(summary.Results, *o.result)
	}

	logger.Info("Sync finished",
		"tally", fmt.Sprintf("%d/%d", summary.Succeeded, summary.Attempted),
		"succeeded", summary.Succeeded,
		"attempted", summary.Attempted,
		"failed", summary.Failed(),
		"dry_run", dryRun,
	)
	return summary
}

func (s *Synchronizer) process(ctx context.Context, it item, dryRun bool) (*RecordResult, error) {
	if it.record == nil {
		return nil, errors.New("nil record")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := it.record.Clone()
	vec, served, err := embedding.EmbedServed(ctx, s.provider, rec.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", rec.Key, err)
	}
	rec.Embedding = vec
	rec.EmbeddingModel = served

	action := ActionWouldWrite
	if !dryRun {
		if s.store == nil {
			return nil, &catalog.PersistenceError{Key: rec.Key, Err: errors.New("no store configured")}
		}
		if err := s.store.Upsert(ctx, rec); err != nil {
			return nil, err
		}
		action = ActionUpdate
		if rec.CreatedAt.Equal(rec.UpdatedAt) {
			action = ActionCreate
		}
	}

	return &RecordResult{
		Source:    it.source,
		Key:       rec.Key,
		Name:      rec.Name,
		ShortDesc: rec.ShortDesc,
		Platform:  rec.Platform,
		Tags:      rec.Tags,
		Meta:      rec.Meta,
		Dimension: len(rec.Embedding),
		Provider:  rec.EmbeddingModel,
		Action:    action,
	}, nil
}
