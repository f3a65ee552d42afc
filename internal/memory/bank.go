package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/persona/internal/observe"
)

const seqKey = "seq"

// Bank is an append-only memory store with a cosine similarity index.
//
// The chronological slice and the chromem collection are updated in the same
// critical section, so readers always see both or neither of a new entry.
type Bank struct {
	embedder Embedder
	clock    Clock
	obs      *observe.Observer

	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
	dims    int
	index   *chromem.Collection
}

// Option configures a Bank.
type Option func(*Bank)

// WithObserver attaches logging and tracing.
func WithObserver(o *observe.Observer) Option {
	return func(b *Bank) {
		b.obs = o
	}
}

// NewBank creates an empty bank that embeds with e and stamps entries with c.
func NewBank(e Embedder, c Clock, opts ...Option) (*Bank, error) {
	if e == nil {
		return nil, errors.New("memory: embedder is required")
	}
	if c == nil {
		return nil, errors.New("memory: clock is required")
	}

	db := chromem.NewDB()
	// Entries are always added with a precomputed embedding; chromem never
	// calls this function.
	col, err := db.CreateCollection("memories", nil, func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("%w: index has no embedding function", ErrEmbeddingUnavailable)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory index: %w", err)
	}

	b := &Bank{
		embedder: e,
		clock:    c,
		byID:     make(map[string]int),
		index:    col,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.obs = observe.OrDiscard(b.obs)
	return b, nil
}

// Add embeds text and appends it as a new entry stamped with the clock's
// current time. Nothing is appended when embedding fails or the vector is
// rejected.
func (b *Bank) Add(ctx context.Context, text string) (Entry, error) {
	ctx, span := b.obs.StartSpan(ctx, "memory.add", attribute.Int("text.length", len(text)))
	defer span.End()

	vec, err := b.embed(ctx, text)
	if err != nil {
		observe.Fail(span, err)
		return Entry{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dims != 0 && len(vec) != b.dims {
		err := fmt.Errorf("%w: dimension %d, bank uses %d", ErrInvalidEmbedding, len(vec), b.dims)
		observe.Fail(span, err)
		return Entry{}, err
	}

	e := Entry{
		ID:        ulid.Make().String(),
		Seq:       len(b.entries),
		Text:      text,
		Timestamp: b.clock.Now(),
		Embedding: vec,
	}

	doc := chromem.Document{
		ID:        e.ID,
		Content:   text,
		Embedding: append([]float32(nil), vec...),
		Metadata:  map[string]string{seqKey: strconv.Itoa(e.Seq)},
	}
	if err := b.index.AddDocument(ctx, doc); err != nil {
		observe.Fail(span, err)
		return Entry{}, fmt.Errorf("failed to index memory: %w", err)
	}

	b.entries = append(b.entries, e)
	b.byID[e.ID] = e.Seq
	b.dims = len(vec)

	b.obs.Log().Debug().Str("id", e.ID).Int("seq", e.Seq).Msg("memory added")
	return e.clone(), nil
}

// Recent returns the last k entries, oldest first.
func (b *Bank) Recent(k int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if k <= 0 {
		return []Entry{}
	}
	if k > len(b.entries) {
		k = len(b.entries)
	}
	return cloneAll(b.entries[len(b.entries)-k:])
}

// Similar returns up to k entries ordered by decreasing cosine similarity to
// query. Equal similarities keep insertion order.
func (b *Bank) Similar(ctx context.Context, query []float32, k int) ([]Entry, error) {
	if k <= 0 {
		return []Entry{}, nil
	}
	if err := validate(query); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.entries)
	if n == 0 {
		return []Entry{}, nil
	}
	if len(query) != b.dims {
		return nil, fmt.Errorf("%w: query dimension %d, bank uses %d", ErrInvalidEmbedding, len(query), b.dims)
	}

	// Ask for every document so ties can be ordered by Seq here rather than
	// by chromem's internal ordering.
	results, err := b.index.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory index: %w", err)
	}

	type hit struct {
		seq int
		sim float32
	}
	hits := make([]hit, 0, len(results))
	for _, r := range results {
		seq, ok := b.byID[r.ID]
		if !ok {
			continue
		}
		hits = append(hits, hit{seq: seq, sim: r.Similarity})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].sim != hits[j].sim {
			return hits[i].sim > hits[j].sim
		}
		return hits[i].seq < hits[j].seq
	})

	if k > len(hits) {
		k = len(hits)
	}
	out := make([]Entry, k)
	for i := 0; i < k; i++ {
		out[i] = b.entries[hits[i].seq].clone()
	}
	return out, nil
}

// Search embeds text and returns the k most similar entries.
func (b *Bank) Search(ctx context.Context, text string, k int) ([]Entry, error) {
	ctx, span := b.obs.StartSpan(ctx, "memory.search", attribute.Int("k", k))
	defer span.End()

	if k <= 0 {
		return []Entry{}, nil
	}
	vec, err := b.embed(ctx, text)
	if err != nil {
		observe.Fail(span, err)
		return nil, err
	}
	out, err := b.Similar(ctx, vec, k)
	observe.Fail(span, err)
	return out, err
}

// Len returns the number of entries.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// All returns every entry in insertion order.
func (b *Bank) All() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneAll(b.entries)
}

func cloneAll(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.clone()
	}
	return out
}

func (b *Bank) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if err := validate(vec); err != nil {
		return nil, err
	}
	return append([]float32(nil), vec...), nil
}

func validate(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	var norm float64
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite component", ErrInvalidEmbedding)
		}
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return fmt.Errorf("%w: zero vector", ErrInvalidEmbedding)
	}
	return nil
}
