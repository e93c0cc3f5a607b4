package embedding

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

// HashingProvider generates embeddings with the hashing trick: every token and
// adjacent token pair is hashed with BLAKE3 into one of dim buckets with a
// hash-derived sign. Texts sharing words land close to each other, no model or
// network access is needed, and the output depends only on the input text.
type HashingProvider struct {
	dim       int
	stopWords map[string]bool
}

// NewHashingProvider creates a deterministic hashing provider.
func NewHashingProvider(dim int) *HashingProvider {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashingProvider{
		dim:       dim,
		stopWords: buildStopWords(),
	}
}

// Embed creates an embedding vector for the given text.
func (p *HashingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dim)

	tokens := p.tokenize(text)
	for i, token := range tokens {
		p.addFeature(vec, token, 1.0)
		if i > 0 {
			p.addFeature(vec, tokens[i-1]+" "+token, 0.5)
		}
	}

	// Texts without usable tokens (or whose features cancel out) still get a
	// stable non-zero vector derived from the raw bytes.
	if isZero(vec) {
		if err := p.seed(vec, text); err != nil {
			return nil, &Error{Provider: p.Name(), Err: err}
		}
	}

	return Normalize(vec), nil
}

// Dimension returns the dimensionality of generated embeddings.
func (p *HashingProvider) Dimension() int {
	return p.dim
}

// Name identifies the provider and its dimension.
func (p *HashingProvider) Name() string {
	return fmt.Sprintf("hash-blake3-%d", p.dim)
}

func (p *HashingProvider) addFeature(vec []float32, feature string, weight float32) {
	sum := blake3.Sum256([]byte(feature))
	idx := binary.LittleEndian.Uint64(sum[:8]) % uint64(p.dim)
	if sum[8]&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// seed fills vec from the BLAKE3 output stream of text, mapped to [-1, 1].
func (p *HashingProvider) seed(vec []float32, text string) error {
	h := blake3.New()
	if _, err := h.Write([]byte(text)); err != nil {
		return err
	}
	buf := make([]byte, 4*len(vec))
	if _, err := io.ReadFull(h.Digest(), buf); err != nil {
		return fmt.Errorf("failed to read digest: %w", err)
	}
	for i := range vec {
		u := binary.LittleEndian.Uint32(buf[4*i:])
		vec[i] = float32(float64(u)/math.MaxUint32*2 - 1)
	}
	return nil
}

// tokenize converts text to lowercase tokens
func (p *HashingProvider) tokenize(text string) []string {
	text = strings.ToLower(text)

	// Split on whitespace and punctuation (dots in keys like "linux.grep" included)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})

	filtered := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) > 1 && !p.stopWords[word] {
			filtered = append(filtered, word)
		}
	}

	return filtered
}

func buildStopWords() map[string]bool {
	return map[string]bool{
		"a": true, "an": true, "the": true, "and": true, "or": true,
		"but": true, "in": true, "on": true, "at": true, "to": true,
		"for": true, "of": true, "with": true, "by": true, "from": true,
		"as": true, "is": true, "was": true, "are": true, "were": true,
		"be": true, "been": true, "being": true, "have": true, "has": true,
		"had": true, "do": true, "does": true, "did": true, "will": true,
		"would": true, "could": true, "should": true, "may": true, "might": true,
		"can": true, "this": true, "that": true, "these": true, "those": true,
	}
}
