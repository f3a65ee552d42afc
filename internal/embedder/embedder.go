// Package embedder provides the embedding strategies a memory bank can be
// built with: deterministic hash vectors for offline runs and tests, random
// vectors, provider-backed embeddings and a cache in front of any of them.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"unicode"

	"github.com/felixgeelhaar/persona/internal/memory"
	"github.com/felixgeelhaar/persona/internal/provider"
)

// DefaultDims matches all-MiniLM-L6-v2.
const DefaultDims = 384

// HashEmbedder generates deterministic embeddings by summing a pseudo-random
// unit vector per word, so texts sharing words end up close together.
type HashEmbedder struct {
	dims int
}

// Hash creates a hash embedder. A non-positive dims selects DefaultDims.
func Hash(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDims
	}
	return &HashEmbedder{dims: dims}
}

// Embed creates a deterministic embedding from text.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		words = []string{text}
	}

	vec := make([]float32, h.dims)
	for _, w := range words {
		f := fnv.New64a()
		_, _ = f.Write([]byte(w))
		seed := f.Sum64()
		for i := range vec {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (h *HashEmbedder) Dimensions() int {
	return h.dims
}

// RandomEmbedder returns a fresh random unit vector for every call. Useful
// for exercising code paths where similarity should carry no signal.
type RandomEmbedder struct {
	dims int
	mu   sync.Mutex
	rng  *rand.Rand
}

// Random creates a random embedder seeded with seed.
func Random(dims int, seed int64) *RandomEmbedder {
	if dims <= 0 {
		dims = DefaultDims
	}
	return &RandomEmbedder{dims: dims, rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec := make([]float32, r.dims)
	for {
		for i := range vec {
			vec[i] = float32(r.rng.NormFloat64())
		}
		if n := normalize(vec); n != nil {
			return n, nil
		}
	}
}

// ProviderEmbedder delegates to a model provider's embedding endpoint.
type ProviderEmbedder struct {
	p provider.Provider
}

// FromProvider adapts p to memory.Embedder.
func FromProvider(p provider.Provider) *ProviderEmbedder {
	return &ProviderEmbedder{p: p}
}

func (e *ProviderEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.p.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.p.Name(), err)
	}
	if len(vec) == 0 {
		return nil, errors.New(e.p.Name() + ": empty embedding")
	}
	return vec, nil
}

var (
	_ memory.Embedder = (*HashEmbedder)(nil)
	_ memory.Embedder = (*RandomEmbedder)(nil)
	_ memory.Embedder = (*ProviderEmbedder)(nil)
)

// normalize converts vec to a unit vector in place. It returns nil for the
// zero vector.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
