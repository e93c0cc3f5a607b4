package embedding

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder is a scripted eino embedder.
type fakeEmbedder struct {
	vectors [][]float64
	err     error
	calls   int
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestModelProvider_NormalizesOutput(t *testing.T) {
	fake := &fakeEmbedder{vectors: [][]float64{{3, 4, 0}}}
	p := NewModelProvider(fake, "fake-3", 3, 0, testLogger())

	vec, err := p.Embed(context.Background(), "anything")
	require.NoError(t, err)
	require.InDeltaSlice(t, []float32{0.6, 0.8, 0}, vec, 1e-6)
	require.Equal(t, 3, p.Dimension())
	require.Equal(t, "fake-3", p.Name())
}

func TestModelProvider_DimensionMismatch(t *testing.T) {
	fake := &fakeEmbedder{vectors: [][]float64{{1, 2}}}
	p := NewModelProvider(fake, "fake-3", 3, 0, testLogger())

	_, err := p.Embed(context.Background(), "anything")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	var embErr *Error
	require.ErrorAs(t, err, &embErr)
	require.Equal(t, "fake-3", embErr.Provider)
}

func TestModelProvider_BackendError(t *testing.T) {
	fake := &fakeEmbedder{err: errors.New("connection refused")}
	p := NewModelProvider(fake, "fake-3", 3, 0, testLogger())

	_, err := p.Embed(context.Background(), "anything")
	var embErr *Error
	require.ErrorAs(t, err, &embErr)
	require.Equal(t, 1, fake.calls, "no retries configured")
}

func TestModelProvider_WrongVectorCountIsPermanent(t *testing.T) {
	fake := &fakeEmbedder{vectors: [][]float64{{1, 0, 0}, {0, 1, 0}}}
	p := NewModelProvider(fake, "fake-3", 3, 3, testLogger())

	_, err := p.Embed(context.Background(), "anything")
	require.Error(t, err)
	require.Equal(t, 1, fake.calls, "permanent errors are not retried")
}

func TestFallbackProvider(t *testing.T) {
	ctx := context.Background()
	hashing := NewHashingProvider(3)

	t.Run("primary success", func(t *testing.T) {
		primary := NewModelProvider(&fakeEmbedder{vectors: [][]float64{{0, 0, 2}}}, "fake-3", 3, 0, testLogger())
		p := NewFallbackProvider(primary, hashing, testLogger())

		vec, served, err := EmbedServed(ctx, p, "text")
		require.NoError(t, err)
		require.Equal(t, []float32{0, 0, 1}, vec)
		require.Equal(t, "fake-3", served)
	})

	t.Run("primary failure uses fallback", func(t *testing.T) {
		primary := NewModelProvider(&fakeEmbedder{err: errors.New("unreachable")}, "fake-3", 3, 0, testLogger())
		p := NewFallbackProvider(primary, hashing, testLogger())

		vec, served, err := EmbedServed(ctx, p, "text")
		require.NoError(t, err)
		require.Equal(t, hashing.Name(), served)

		want, err := hashing.Embed(ctx, "text")
		require.NoError(t, err)
		require.Equal(t, want, vec)
		require.Equal(t, "fake-3|hash-blake3-3", p.Name())
		require.Equal(t, 3, p.Dimension())
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, Config{}, testLogger())
	require.NoError(t, err)
	require.IsType(t, &HashingProvider{}, p)
	require.Equal(t, DefaultDimension, p.Dimension())

	p, err = New(ctx, Config{Provider: ProviderHash, Dimension: 64}, testLogger())
	require.NoError(t, err)
	require.Equal(t, 64, p.Dimension())

	p, err = New(ctx, Config{Provider: ProviderOllama, Dimension: 64}, testLogger())
	require.NoError(t, err)
	require.Equal(t, 64, p.Dimension())
	require.Contains(t, p.Name(), "hash-blake3-64")

	_, err = New(ctx, Config{Provider: "word2vec"}, testLogger())
	require.Error(t, err)
}

func TestNewChain(t *testing.T) {
	ctx := context.Background()

	t.Run("dimension mismatch fails at construction", func(t *testing.T) {
		fake := &fakeEmbedder{vectors: [][]float64{make([]float64, 768)}}
		_, err := newChain(ctx, fake, Config{Provider: ProviderOllama, Model: "nomic-embed-text", Dimension: 128}, testLogger())
		require.ErrorIs(t, err, ErrDimensionMismatch)
		require.ErrorContains(t, err, "set embedding.dimension")
		require.Equal(t, 1, fake.calls)
	})

	t.Run("unreachable backend still builds the chain", func(t *testing.T) {
		fake := &fakeEmbedder{err: errors.New("connection refused")}
		p, err := newChain(ctx, fake, Config{Provider: ProviderOllama, Model: "nomic-embed-text", Dimension: 3}, testLogger())
		require.NoError(t, err)
		require.Equal(t, "ollama-nomic-embed-text-3|hash-blake3-3", p.Name())

		_, served, err := EmbedServed(ctx, p, "text")
		require.NoError(t, err)
		require.Equal(t, "hash-blake3-3", served)
	})

	t.Run("healthy backend serves model vectors", func(t *testing.T) {
		fake := &fakeEmbedder{vectors: [][]float64{{3, 0, 4}}}
		p, err := newChain(ctx, fake, Config{Provider: ProviderOpenAI, Model: "m", Dimension: 3}, testLogger())
		require.NoError(t, err)

		vec, served, err := EmbedServed(ctx, p, "text")
		require.NoError(t, err)
		require.Equal(t, "openai-m-3", served)
		require.InDeltaSlice(t, []float32{0.6, 0, 0.8}, vec, 1e-6)
	})
}

func TestCodecRoundTrip(t *testing.T) {
	v := []float32{0.25, -1, 3.5}
	decoded, err := DecodeVector(EncodeVector(v))
	require.NoError(t, err)
	require.Equal(t, v, decoded)

	_, err = DecodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}
