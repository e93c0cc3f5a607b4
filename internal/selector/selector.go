// Package selector answers "which k tools best match this intent on these
// platforms" against the catalog.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/radutopala/toolcat/internal/catalog"
	"github.com/radutopala/toolcat/internal/embedding"
	"github.com/radutopala/toolcat/internal/tools"
)

// Selector embeds intents with the provider used at write time and ranks
// catalog records against them.
type Selector struct {
	provider embedding.Provider
	store    catalog.Store
	logger   *slog.Logger
}

// New creates a Selector. The provider must match the one the catalog was
// synced with.
func New(provider embedding.Provider, store catalog.Store, logger *slog.Logger) (*Selector, error) {
	if provider.Dimension() != store.Dimension() {
		return nil, fmt.Errorf("embedding provider %s produces %d dimensions, store expects %d: %w",
			provider.Name(), provider.Dimension(), store.Dimension(), embedding.ErrDimensionMismatch)
	}
	return &Selector{provider: provider, store: store, logger: logger}, nil
}

// SelectTopK returns at most k records eligible for platforms, closest first.
func (s *Selector) SelectTopK(ctx context.Context, intent string, platforms []string, k int) ([]*tools.Record, error) {
	matches, err := s.SelectMatches(ctx, intent, platforms, k)
	if err != nil {
		return nil, err
	}

	out := make([]*tools.Record, len(matches))
	for i, m := range matches {
		out[i] = m.Record
	}
	return out, nil
}

// SelectMatches is SelectTopK with distances.
func (s *Selector) SelectMatches(ctx context.Context, intent string, platforms []string, k int) ([]catalog.Match, error) {
	if k <= 0 {
		return []catalog.Match{}, nil
	}

	vec, served, err := embedding.EmbedServed(ctx, s.provider, strings.TrimSpace(intent))
	if err != nil {
		return nil, fmt.Errorf("failed to embed intent: %w", err)
	}

	matches, err := s.store.Search(ctx, catalog.Query{
		Vector:    vec,
		Platforms: tools.NormalizeSet(platforms),
		K:         k,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}

	for _, m := range matches {
		if m.Record.EmbeddingModel != "" && m.Record.EmbeddingModel != served {
			s.logger.Warn("Record embedded by a different provider, distances are not comparable; re-sync the catalog",
				"key", m.Record.Key,
				"record_model", m.Record.EmbeddingModel,
				"query_model", served,
			)
		}
	}

	s.logger.Debug("Selected tools", "intent", intent, "platforms", platforms, "k", k, "results", len(matches))
	return matches, nil
}
