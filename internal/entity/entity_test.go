package entity

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/persona/internal/action"
	"github.com/felixgeelhaar/persona/internal/clock"
	"github.com/felixgeelhaar/persona/internal/memory"
)

// recordingModel returns a fixed answer and remembers the context it saw.
type recordingModel struct {
	mu      sync.Mutex
	answer  string
	err     error
	calls   int
	context []string
	name    string
}

func (m *recordingModel) Generate(ctx context.Context, name string, lines []string, spec action.Spec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.name = name
	m.context = append([]string(nil), lines...)
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

func hashEmbedder() memory.EmbedderFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		v := make([]float32, 8)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[h.Sum32()%8] += 1
		}
		v[0] += 0.001
		return v, nil
	}
}

func newTestEntity(t *testing.T, m LanguageModel, opts ...Option) (*Entity, *clock.Clock, *memory.Bank) {
	t.Helper()
	clk, err := clock.New(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), time.Hour)
	if err != nil {
		t.Fatalf("clock.New failed: %v", err)
	}
	bank, err := memory.NewBank(hashEmbedder(), clk)
	if err != nil {
		t.Fatalf("NewBank failed: %v", err)
	}
	return New("Rakshit", m, bank, clk, opts...), clk, bank
}

func mustChoice(t *testing.T, options ...string) action.Spec {
	t.Helper()
	s, err := action.NewChoice("What does {name} do?", options, "decision")
	if err != nil {
		t.Fatalf("NewChoice failed: %v", err)
	}
	return s
}

func TestEntity_ActChoice(t *testing.T) {
	model := &recordingModel{answer: "x"}
	e, _, _ := newTestEntity(t, model)

	got, err := e.Act(context.Background(), mustChoice(t, "x", "y"))
	if err != nil {
		t.Fatalf("Act failed: %v", err)
	}
	if got != "x" {
		t.Errorf("expected 'x', got %q", got)
	}
	if model.name != "Rakshit" {
		t.Errorf("expected model to be called for Rakshit, got %q", model.name)
	}
}

func TestEntity_ActSubstringFallback(t *testing.T) {
	e, _, _ := newTestEntity(t, &recordingModel{answer: "I choose x because..."})

	got, err := e.Act(context.Background(), mustChoice(t, "x", "y"))
	if err != nil {
		t.Fatalf("Act failed: %v", err)
	}
	if got != "x" {
		t.Errorf("expected 'x', got %q", got)
	}
}

func TestEntity_ActUnresolvable(t *testing.T) {
	e, _, _ := newTestEntity(t, &recordingModel{answer: "neither"})

	_, err := e.Act(context.Background(), mustChoice(t, "x", "y"))
	if !errors.Is(err, action.ErrUnresolvableChoice) {
		t.Errorf("expected ErrUnresolvableChoice, got %v", err)
	}
}

func TestEntity_ActFreeTextEmpty(t *testing.T) {
	e, _, _ := newTestEntity(t, &recordingModel{answer: "   "})

	_, err := e.Act(context.Background(), action.DefaultSpeech)
	if !errors.Is(err, action.ErrEmptyAnswer) {
		t.Errorf("expected ErrEmptyAnswer, got %v", err)
	}
}

func TestEntity_GenerationFailureLeavesMemory(t *testing.T) {
	cause := errors.New("model offline")
	e, _, bank := newTestEntity(t, &recordingModel{err: cause})
	ctx := context.Background()

	if err := e.Observe(ctx, "the bell rang"); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	before := bank.Len()

	_, err := e.Act(ctx, action.DefaultSpeech)
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Errorf("expected ErrGenerationUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause in chain, got %v", err)
	}
	if bank.Len() != before {
		t.Errorf("memory changed from %d to %d", before, bank.Len())
	}
}

func TestEntity_ActCancelled(t *testing.T) {
	model := &cancelModel{}
	e, _, _ := newTestEntity(t, model)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Act(ctx, action.DefaultSpeech)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Errorf("expected ErrGenerationUnavailable, got %v", err)
	}
}

type cancelModel struct{}

func (cancelModel) Generate(ctx context.Context, name string, lines []string, spec action.Spec) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestEntity_ObserveRejectsEmpty(t *testing.T) {
	e, _, bank := newTestEntity(t, &recordingModel{answer: "x"})

	if err := e.Observe(context.Background(), ""); !errors.Is(err, ErrInvalidObservation) {
		t.Errorf("expected ErrInvalidObservation, got %v", err)
	}
	if bank.Len() != 0 {
		t.Errorf("expected empty memory, got %d", bank.Len())
	}
}

func TestEntity_ObserveKeepsWhitespaceVerbatim(t *testing.T) {
	e, _, bank := newTestEntity(t, &recordingModel{answer: "x"})

	for _, text := range []string{"  ", "\n", " padded "} {
		if err := e.Observe(context.Background(), text); err != nil {
			t.Fatalf("Observe(%q) failed: %v", text, err)
		}
	}
	all := bank.All()
	if len(all) != 3 || all[0].Text != "  " || all[1].Text != "\n" || all[2].Text != " padded " {
		t.Errorf("expected texts stored verbatim, got %+v", all)
	}
}

func TestEntity_ObserveThenActRoundTrip(t *testing.T) {
	model := &recordingModel{answer: "hello"}
	e, clk, _ := newTestEntity(t, model)
	ctx := context.Background()

	if err := e.Observe(ctx, "a stranger arrived at the gate"); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if _, err := clk.Advance(0); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := e.Observe(ctx, "the stranger asked for water"); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	if _, err := e.Act(ctx, action.DefaultSpeech); err != nil {
		t.Fatalf("Act failed: %v", err)
	}

	want := []string{
		"[2024-03-01 08:00:00] a stranger arrived at the gate",
		"[2024-03-01 09:00:00] the stranger asked for water",
	}
	if len(model.context) != len(want) {
		t.Fatalf("expected %d context lines (deduplicated), got %d: %v", len(want), len(model.context), model.context)
	}
	for i := range want {
		if model.context[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], model.context[i])
		}
	}
}

func TestEntity_ContextWindows(t *testing.T) {
	model := &recordingModel{answer: "ok"}
	e, _, _ := newTestEntity(t, model, WithWindows(2, 0))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := e.Observe(ctx, fmt.Sprintf("event %d", i)); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}
	if _, err := e.Act(ctx, action.DefaultSpeech); err != nil {
		t.Fatalf("Act failed: %v", err)
	}

	if len(model.context) != 2 {
		t.Fatalf("expected 2 context lines, got %d", len(model.context))
	}
	if !strings.HasSuffix(model.context[0], "event 3") || !strings.HasSuffix(model.context[1], "event 4") {
		t.Errorf("unexpected context %v", model.context)
	}
}

func TestEntity_ActNeverWritesMemory(t *testing.T) {
	e, _, bank := newTestEntity(t, &recordingModel{answer: "x"})
	ctx := context.Background()
	_ = e.Observe(ctx, "something happened")

	for i := 0; i < 3; i++ {
		if _, err := e.Act(ctx, mustChoice(t, "x", "y")); err != nil {
			t.Fatalf("Act failed: %v", err)
		}
	}
	if bank.Len() != 1 {
		t.Errorf("expected 1 memory, got %d", bank.Len())
	}
}
