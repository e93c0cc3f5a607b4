package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino-ext/components/embedding/ollama"
	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/redis/go-redis/v9"
)

// Supported provider names.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// checkText is embedded once at construction to check a model backend.
const checkText = "dimension check"

// Config selects and configures the embedding backend.
type Config struct {
	Provider   string        `mapstructure:"provider"`    // hash (default), openai or ollama
	Model      string        `mapstructure:"model"`       // Model name for model-backed providers
	BaseURL    string        `mapstructure:"base_url"`    // Endpoint override
	APIKey     string        `mapstructure:"api_key"`     // API key (openai)
	Dimension  int           `mapstructure:"dimension"`   // Vector length, DefaultDimension when zero
	Timeout    time.Duration `mapstructure:"timeout"`     // Per-request timeout for model-backed providers
	MaxRetries int           `mapstructure:"max_retries"` // Retries before falling back
}

// Option configures New.
type Option func(*options)

type options struct {
	cache    redis.UniversalClient
	cacheTTL time.Duration
}

// WithCache memoises model embeddings in Redis. Only the model backend is
// cached; hashing vectors are cheaper to recompute than to fetch.
func WithCache(client redis.UniversalClient, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = client
		o.cacheTTL = ttl
	}
}

// New builds the provider chain described by cfg. Model-backed providers are
// always chained with the hashing provider, so a model outage degrades to
// hashing vectors instead of failing. New fails on an unknown provider name
// and on a model whose vectors do not have the configured dimension.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...Option) (Provider, error) {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}

	var (
		embedder embedding.Embedder
		err      error
	)

	switch cfg.Provider {
	case "", ProviderHash:
		logger.Info("Using hashing embedding provider", "dimension", dim)
		return NewHashingProvider(dim), nil
	case ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = "text-embedding-3-small"
		}
		embedder, err = openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			Dimensions: &dim,
		})
	case ProviderOllama:
		if cfg.Model == "" {
			cfg.Model = "nomic-embed-text"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		// Ollama has no dimension parameter; the check in newChain catches a
		// model whose native size differs from the configured one.
		embedder, err = ollama.NewEmbedder(ctx, &ollama.EmbeddingConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if err != nil {
		logger.Warn("Failed to create embedding backend, using hashing provider",
			"provider", cfg.Provider,
			"error", err)
		return NewHashingProvider(dim), nil
	}

	cfg.Dimension = dim
	return newChain(ctx, embedder, cfg, logger, opts...)
}

// newChain wraps a model embedder as Fallback(Cache?(Model), Hashing) after
// checking once that the model produces vectors of the configured size.
func newChain(ctx context.Context, embedder embedding.Embedder, cfg Config, logger *slog.Logger, opts ...Option) (Provider, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	name := fmt.Sprintf("%s-%s-%d", cfg.Provider, cfg.Model, cfg.Dimension)
	model := NewModelProvider(embedder, name, cfg.Dimension, cfg.MaxRetries, logger)

	if _, err := model.Embed(ctx, checkText); err != nil {
		if errors.Is(err, ErrDimensionMismatch) {
			return nil, fmt.Errorf("embedding model %s does not produce %d-dimensional vectors, set embedding.dimension to the model's size: %w",
				cfg.Model, cfg.Dimension, err)
		}
		logger.Warn("Embedding backend unavailable, hashing vectors will be used until it recovers",
			"provider", name,
			"error", err)
	}

	var primary Provider = model
	if o.cache != nil {
		logger.Info("Embedding cache enabled", "provider", name, "ttl", o.cacheTTL)
		primary = NewCachedProvider(model, o.cache, o.cacheTTL, logger)
	}

	fallback := NewHashingProvider(cfg.Dimension)
	logger.Info("Using model embedding provider", "name", name, "fallback", fallback.Name())
	return NewFallbackProvider(primary, fallback, logger), nil
}
