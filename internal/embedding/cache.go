package embedding

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"
)

const cacheKeyPrefix = "toolcat:embedding:"

// CachedProvider memoises embeddings in Redis. Cache failures are logged and
// never surface to the caller.
type CachedProvider struct {
	next   Provider
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedProvider wraps next with a Redis cache. A zero ttl keeps entries forever.
// Wrap the model backend itself, not a fallback chain around it.
func NewCachedProvider(next Provider, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Embed returns the cached embedding for text, computing and storing it on a miss.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := p.EmbedServed(ctx, text)
	return vec, err
}

// EmbedServed is Embed that also names the provider that produced the vector.
// Only vectors produced by the wrapped provider itself are cached; a vector
// served by a fallback inside it is returned but never stored.
func (p *CachedProvider) EmbedServed(ctx context.Context, text string) ([]float32, string, error) {
	key := p.cacheKey(text)

	data, err := p.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		vec, decodeErr := DecodeVector(data)
		if decodeErr == nil && len(vec) == p.next.Dimension() {
			return vec, p.next.Name(), nil
		}
		p.logger.WarnContext(ctx, "Discarding corrupt cached embedding", "key", key)
	case !errors.Is(err, redis.Nil):
		p.logger.WarnContext(ctx, "Embedding cache read failed", "error", err)
	}

	vec, served, err := EmbedServed(ctx, p.next, text)
	if err != nil {
		return nil, "", err
	}

	if served != p.next.Name() {
		p.logger.DebugContext(ctx, "Not caching embedding from another provider", "served", served)
		return vec, served, nil
	}

	if err := p.client.Set(ctx, key, EncodeVector(vec), p.ttl).Err(); err != nil {
		p.logger.WarnContext(ctx, "Embedding cache write failed", "error", err)
	}

	return vec, served, nil
}

// Dimension returns the dimensionality of generated embeddings.
func (p *CachedProvider) Dimension() int {
	return p.next.Dimension()
}

// Name returns the name of the wrapped provider; caching does not change vectors.
func (p *CachedProvider) Name() string {
	return p.next.Name()
}

// cacheKey scopes entries by provider so a backend switch never serves stale vectors.
func (p *CachedProvider) cacheKey(text string) string {
	sum := blake3.Sum256([]byte(text))
	return cacheKeyPrefix + p.next.Name() + ":" + hex.EncodeToString(sum[:])
}
