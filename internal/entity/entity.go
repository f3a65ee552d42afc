// Package entity implements the simulated agent: it remembers what it
// observes and, when asked to act, grounds a language model in its memory
// and validates the answer against the requested action.
package entity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/persona/internal/action"
	"github.com/felixgeelhaar/persona/internal/memory"
	"github.com/felixgeelhaar/persona/internal/observe"
)

var (
	// ErrInvalidObservation is returned for empty or whitespace-only observations.
	ErrInvalidObservation = errors.New("invalid observation")

	// ErrGenerationUnavailable wraps any failure of the language model.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)

// LanguageModel produces a raw answer for an entity given its rendered
// memory context and the requested action.
type LanguageModel interface {
	Generate(ctx context.Context, name string, context []string, spec action.Spec) (string, error)
}

// Memory is the subset of memory.Bank an entity needs.
type Memory interface {
	Add(ctx context.Context, text string) (memory.Entry, error)
	Recent(k int) []memory.Entry
	Search(ctx context.Context, text string, k int) ([]memory.Entry, error)
	Len() int
}

// Clock is the shared simulation clock.
type Clock interface {
	Now() time.Time
}

// Entity is a single simulated agent.
type Entity struct {
	name     string
	model    LanguageModel
	memory   Memory
	clock    Clock
	obs      *observe.Observer
	nRecent  int
	nSimilar int
}

// Option configures an Entity.
type Option func(*Entity)

// WithObserver attaches logging and tracing.
func WithObserver(o *observe.Observer) Option {
	return func(e *Entity) {
		e.obs = o
	}
}

// WithWindows sets how many recent and how many similar memories are given
// to the model on each Act.
func WithWindows(nRecent, nSimilar int) Option {
	return func(e *Entity) {
		e.nRecent = nRecent
		e.nSimilar = nSimilar
	}
}

// New creates an entity. Most callers should go through the factory package.
func New(name string, model LanguageModel, mem Memory, clock Clock, opts ...Option) *Entity {
	e := &Entity{
		name:     name,
		model:    model,
		memory:   mem,
		clock:    clock,
		nRecent:  10,
		nSimilar: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.obs = observe.OrDiscard(e.obs)
	return e
}

// Name returns the entity's name.
func (e *Entity) Name() string { return e.name }

// Windows returns the recent and similar context window sizes.
func (e *Entity) Windows() (nRecent, nSimilar int) { return e.nRecent, e.nSimilar }

// Memory returns the entity's memory.
func (e *Entity) Memory() Memory { return e.memory }

// Clock returns the shared clock.
func (e *Entity) Clock() Clock { return e.clock }

// Observe records text in memory, stamped with the current simulated time.
// Any non-empty text is stored verbatim, whitespace included.
func (e *Entity) Observe(ctx context.Context, text string) error {
	ctx, span := e.obs.StartSpan(ctx, "entity.observe", attribute.String("agent", e.name))
	defer span.End()

	if text == "" {
		observe.Fail(span, ErrInvalidObservation)
		return fmt.Errorf("%w: %s received empty text", ErrInvalidObservation, e.name)
	}

	entry, err := e.memory.Add(ctx, text)
	if err != nil {
		observe.Fail(span, err)
		e.obs.Log().Warn().Str("agent", e.name).Err(err).Msg("observation not stored")
		return err
	}

	e.obs.Log().Debug().Str("agent", e.name).Int("seq", entry.Seq).Msg("observed")
	return nil
}

// Act asks the language model what the entity does next and resolves the
// answer against spec. Act never writes to memory.
func (e *Entity) Act(ctx context.Context, spec action.Spec) (string, error) {
	ctx, span := e.obs.StartSpan(ctx, "entity.act",
		attribute.String("agent", e.name),
		attribute.String("tag", spec.Tag()),
	)
	defer span.End()

	lines, err := e.context(ctx, spec)
	if err != nil {
		observe.Fail(span, err)
		return "", err
	}

	raw, err := e.model.Generate(ctx, e.name, lines, spec)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
		observe.Fail(span, err)
		e.obs.Log().Warn().Str("agent", e.name).Err(err).Msg("generation failed")
		return "", err
	}

	answer, err := action.Resolve(spec, raw)
	if err != nil {
		observe.Fail(span, err)
		e.obs.Log().Warn().Str("agent", e.name).Str("spec", spec.String()).Err(err).Msg("answer rejected")
		return "", err
	}

	span.SetAttributes(attribute.Int("answer.length", len(answer)))
	e.obs.Log().Info().Str("agent", e.name).Str("tag", spec.Tag()).Msg("acted")
	return answer, nil
}

// context gathers recent and relevant memories, de-duplicated and in
// chronological order, rendered one per line.
func (e *Entity) context(ctx context.Context, spec action.Spec) ([]string, error) {
	entries := e.memory.Recent(e.nRecent)

	if e.nSimilar > 0 && e.memory.Len() > 0 {
		similar, err := e.memory.Search(ctx, spec.PromptFor(e.name), e.nSimilar)
		if err != nil {
			return nil, err
		}
		entries = append(entries, similar...)
	}

	seen := make(map[string]bool, len(entries))
	unique := entries[:0:0]
	for _, m := range entries {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		unique = append(unique, m)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].Seq < unique[j].Seq })

	lines := make([]string, len(unique))
	for i, m := range unique {
		lines[i] = fmt.Sprintf("[%s] %s", m.Timestamp.Format(time.DateTime), m.Text)
	}
	return lines, nil
}
