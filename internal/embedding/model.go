package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/components/embedding"
)

// ModelProvider generates embeddings with a neural text encoder.
type ModelProvider struct {
	embedder   embedding.Embedder
	name       string
	dim        int
	maxRetries int
	logger     *slog.Logger
}

// NewModelProvider wraps an eino embedder. Every vector it returns must have
// exactly dim components.
func NewModelProvider(embedder embedding.Embedder, name string, dim, maxRetries int, logger *slog.Logger) *ModelProvider {
	return &ModelProvider{
		embedder:   embedder,
		name:       name,
		dim:        dim,
		maxRetries: max(maxRetries, 0),
		logger:     logger,
	}
}

// Embed creates an embedding vector for the given text.
func (p *ModelProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	operation := func() ([]float64, error) {
		vectors, err := p.embedder.EmbedStrings(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, backoff.Permanent(fmt.Errorf("expected 1 vector, got %d", len(vectors)))
		}
		return vectors[0], nil
	}

	raw, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(p.maxRetries+1)), // #nosec G115 -- maxRetries is clamped to >= 0
		backoff.WithNotify(func(err error, d time.Duration) {
			p.logger.Debug("Retrying embedding request", "provider", p.name, "error", err, "delay", d)
		}),
	)
	if err != nil {
		return nil, &Error{Provider: p.name, Err: err}
	}

	if len(raw) != p.dim {
		return nil, &Error{
			Provider: p.name,
			Err:      fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(raw), p.dim),
		}
	}

	vec := make([]float32, len(raw))
	for i, val := range raw {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, &Error{Provider: p.name, Err: fmt.Errorf("non-finite component at index %d", i)}
		}
		vec[i] = float32(val)
	}

	return Normalize(vec), nil
}

// Dimension returns the dimensionality of generated embeddings.
func (p *ModelProvider) Dimension() int {
	return p.dim
}

// Name identifies the backend and model.
func (p *ModelProvider) Name() string {
	return p.name
}
