package embedding

import (
	"context"
	"log/slog"
)

// FallbackProvider uses primary and falls back to a deterministic provider
// whenever primary fails. Embed never returns a primary error.
type FallbackProvider struct {
	primary  Provider
	fallback Provider
	logger   *slog.Logger
}

// NewFallbackProvider creates a provider chain. Both providers must share a dimension.
func NewFallbackProvider(primary, fallback Provider, logger *slog.Logger) *FallbackProvider {
	return &FallbackProvider{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Embed returns the primary embedding, or the fallback embedding if primary fails.
func (p *FallbackProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := p.EmbedServed(ctx, text)
	return vec, err
}

// EmbedServed is Embed that also names the provider whose vector was returned.
func (p *FallbackProvider) EmbedServed(ctx context.Context, text string) ([]float32, string, error) {
	vec, served, err := EmbedServed(ctx, p.primary, text)
	if err == nil {
		return vec, served, nil
	}

	p.logger.WarnContext(ctx, "Embedding backend failed, using fallback",
		"primary", p.primary.Name(),
		"fallback", p.fallback.Name(),
		"error", err)

	return EmbedServed(ctx, p.fallback, text)
}

// Dimension returns the dimensionality of generated embeddings.
func (p *FallbackProvider) Dimension() int {
	return p.primary.Dimension()
}

// Name identifies both providers of the chain. Vectors are labelled with the
// provider that served them, see EmbedServed.
func (p *FallbackProvider) Name() string {
	return p.primary.Name() + "|" + p.fallback.Name()
}
