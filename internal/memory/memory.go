// Package memory implements the append-only associative memory owned by each
// entity. Entries are kept in insertion order and indexed by embedding so they
// can be retrieved either by recency or by cosine similarity to a query.
package memory

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmbeddingUnavailable wraps any failure of the embedding capability.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrInvalidEmbedding is returned for vectors that cannot be indexed: an
	// empty or zero-norm vector, or one whose dimension differs from the
	// vectors already stored.
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed calls f.
func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Clock is the time source used to stamp entries.
type Clock interface {
	Now() time.Time
}

// Entry is a single remembered observation. Entries are immutable once added.
type Entry struct {
	ID        string
	Seq       int
	Text      string
	Timestamp time.Time
	Embedding []float32
}

// clone returns e with its own copy of the embedding.
func (e Entry) clone() Entry {
	e.Embedding = append([]float32(nil), e.Embedding...)
	return e
}
