// Package simulation drives a scenario: it builds one entity per agent
// around a shared clock, executes the scenario's steps in order and
// publishes what happens on an EventBus.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/persona/internal/action"
	"github.com/felixgeelhaar/persona/internal/clock"
	"github.com/felixgeelhaar/persona/internal/entity"
	"github.com/felixgeelhaar/persona/internal/factory"
	"github.com/felixgeelhaar/persona/internal/guard"
	"github.com/felixgeelhaar/persona/internal/memory"
	"github.com/felixgeelhaar/persona/internal/observe"
	"github.com/felixgeelhaar/persona/internal/scenario"
	"github.com/felixgeelhaar/persona/internal/ui"
)

var (
	// ErrInvalidScenario is returned by New for scenarios that fail validation.
	ErrInvalidScenario = errors.New("invalid scenario")

	// ErrHalted is returned when the guard stops a run.
	ErrHalted = errors.New("run halted")
)

// Action is one resolved act of a run.
type Action struct {
	Step    int
	Agent   string
	Tag     string
	Answer  string
	SimTime time.Time
}

// Result summarizes a run.
type Result struct {
	RunID   string
	Steps   int
	Actions []Action
	Failed  int
}

// Simulation is a prepared scenario run. It is not safe to Run twice.
type Simulation struct {
	scenario *scenario.Scenario
	runID    string
	clock    *clock.Clock
	agents   map[string]*entity.Entity
	banks    map[string]*memory.Bank
	order    []string
	bus      *EventBus
	guard    *guard.Guard
	obs      *observe.Observer
	ui       ui.UI
}

// Option configures a Simulation.
type Option func(*Simulation)

func WithObserver(o *observe.Observer) Option {
	return func(s *Simulation) { s.obs = o }
}

func WithGuard(g *guard.Guard) Option {
	return func(s *Simulation) { s.guard = g }
}

func WithUI(u ui.UI) Option {
	return func(s *Simulation) {
		if u != nil {
			s.ui = u
		}
	}
}

func WithEventBus(b *EventBus) Option {
	return func(s *Simulation) { s.bus = b }
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(s *Simulation) { s.runID = id }
}

// New validates sc and builds its agents. Every agent gets its own memory
// bank; all share model, embedder and clock.
func New(sc *scenario.Scenario, model entity.LanguageModel, emb memory.Embedder, opts ...Option) (*Simulation, error) {
	s := &Simulation{
		scenario: sc,
		runID:    uuid.NewString(),
		agents:   make(map[string]*entity.Entity),
		banks:    make(map[string]*memory.Bank),
		bus:      NewEventBus(),
		guard:    guard.New(guard.DefaultPolicy),
		ui:       ui.SilentUI{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.obs = observe.OrDiscard(s.obs)

	if res := scenario.Validate(sc); !res.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidScenario, strings.Join(res.Errors, "; "))
	}
	if v := s.guard.CheckAgents(len(sc.Agents)); v != nil {
		return nil, fmt.Errorf("%w: %w", ErrHalted, v)
	}

	clk, err := clock.New(sc.Start, sc.Durations()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	s.clock = clk

	for _, a := range sc.Agents {
		bank, err := memory.NewBank(emb, clk, memory.WithObserver(s.obs))
		if err != nil {
			return nil, err
		}
		e, err := factory.Build(a.Kind, factory.Config{Name: a.Name, Extras: a.Extras}, model, bank, clk, entity.WithObserver(s.obs))
		if err != nil {
			return nil, err
		}
		s.agents[a.Name] = e
		s.banks[a.Name] = bank
		s.order = append(s.order, a.Name)
	}

	return s, nil
}

func (s *Simulation) RunID() string { return s.runID }

// Bus returns the event bus the run publishes on.
func (s *Simulation) Bus() *EventBus { return s.bus }

func (s *Simulation) Clock() *clock.Clock { return s.clock }

func (s *Simulation) Scenario() *scenario.Scenario { return s.scenario }

// Agents returns agent names in declaration order.
func (s *Simulation) Agents() []string {
	return append([]string(nil), s.order...)
}

// Agent returns the named entity.
func (s *Simulation) Agent(name string) (*entity.Entity, bool) {
	e, ok := s.agents[name]
	return e, ok
}

// Memories returns a copy of an agent's memory in insertion order.
func (s *Simulation) Memories(name string) []memory.Entry {
	b, ok := s.banks[name]
	if !ok {
		return nil
	}
	return b.All()
}

// Run executes every step. Answers that do not satisfy their spec are
// reported as act_failed and the run goes on; capability failures,
// cancellation and guard violations end the run with an error.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	ctx, span := s.obs.StartSpan(ctx, "simulation.run",
		attribute.String("run", s.runID),
		attribute.String("scenario", s.scenario.Name),
	)
	defer span.End()

	log := s.obs.Log().With().Str("run", s.runID).Logger()
	log.Info().Str("scenario", s.scenario.Name).Int("steps", len(s.scenario.Steps)).Msg("starting run")
	s.ui.UpdateStatus("running " + s.scenario.Name)

	res := &Result{RunID: s.runID}
	total := len(s.scenario.Steps)

	for i, step := range s.scenario.Steps {
		if err := ctx.Err(); err != nil {
			return res, s.fail(span, i, err, false)
		}
		if v := s.guard.CheckBudget(i+1, len(res.Actions)+res.Failed); v != nil {
			log.Warn().Str("violation", v.Rule).Msg("guard violation, stopping")
			return res, s.fail(span, i, fmt.Errorf("%w: %w", ErrHalted, v), true)
		}

		s.publish(i, EventStepStart, "", step.Kind(), nil)
		s.ui.UpdateStep(i+1, total)

		if err := s.step(ctx, i, step, res); err != nil {
			return res, s.fail(span, i, err, errors.Is(err, ErrHalted))
		}
		res.Steps++
	}

	s.publish(total, EventRunComplete, "", "", map[string]any{
		"steps":  res.Steps,
		"acts":   len(res.Actions),
		"failed": res.Failed,
	})
	s.ui.UpdateStatus("completed")
	log.Info().Int("acts", len(res.Actions)).Int("failed", res.Failed).Msg("run complete")
	return res, nil
}

func (s *Simulation) step(ctx context.Context, i int, step scenario.Step, res *Result) error {
	ctx, span := s.obs.StartSpan(ctx, "simulation.step",
		attribute.Int("step", i),
		attribute.String("kind", step.Kind()),
	)
	defer span.End()

	var err error
	switch {
	case step.Advance != nil:
		var now time.Time
		if now, err = s.clock.Advance(*step.Advance); err == nil {
			s.publish(i, EventClockAdvanced, "", now.Format(time.DateTime), map[string]any{"index": *step.Advance})
		}
	case step.Observe != nil:
		targets := []string{step.Observe.Agent}
		if step.Observe.Agent == scenario.Broadcast {
			targets = s.order
		}
		err = s.deliver(ctx, i, targets, step.Observe.Text)
	case step.Act != nil:
		err = s.act(ctx, i, step.Act, res)
	default:
		err = fmt.Errorf("%w: step %d has no form", ErrInvalidScenario, i)
	}

	if err != nil {
		observe.Fail(span, err)
	}
	return err
}

func (s *Simulation) act(ctx context.Context, i int, a *scenario.Act, res *Result) error {
	if v := s.guard.CheckBudget(i+1, len(res.Actions)+res.Failed+1); v != nil {
		return fmt.Errorf("%w: %w", ErrHalted, v)
	}

	spec, err := a.Spec.Build()
	if err != nil {
		return fmt.Errorf("%w: step %d: %w", ErrInvalidScenario, i, err)
	}
	actor := s.agents[a.Agent]

	answer, err := actor.Act(ctx, spec)
	if err != nil {
		if action.IsResolutionError(err) {
			res.Failed++
			s.publish(i, EventActFailed, a.Agent, err.Error(), map[string]any{"tag": spec.Tag()})
			s.ui.Log(fmt.Sprintf("%s could not act: %v", a.Agent, err))
			return nil
		}
		return fmt.Errorf("%s failed to act: %w", a.Agent, err)
	}

	res.Actions = append(res.Actions, Action{Step: i, Agent: a.Agent, Tag: spec.Tag(), Answer: answer, SimTime: s.clock.Now()})
	s.publish(i, EventActed, a.Agent, answer, map[string]any{"tag": spec.Tag()})
	s.ui.Log(fmt.Sprintf("%s: %s", a.Agent, answer))

	text := a.Agent + ": " + answer
	var targets []string
	for _, name := range s.order {
		if name == a.Agent {
			if a.Remember {
				targets = append(targets, name)
			}
			continue
		}
		if a.Broadcast {
			targets = append(targets, name)
		}
	}
	return s.deliver(ctx, i, targets, text)
}

// deliver makes every target observe text concurrently, then publishes one
// observed event per target that stored it, in declaration order. A failed
// target does not stop the others; the first failure is returned.
func (s *Simulation) deliver(ctx context.Context, i int, targets []string, text string) error {
	if len(targets) == 0 {
		return nil
	}

	errs := make([]error, len(targets))
	var g errgroup.Group
	for idx, name := range targets {
		e := s.agents[name]
		g.Go(func() error {
			errs[idx] = e.Observe(ctx, text)
			return errs[idx]
		})
	}
	err := g.Wait()

	for idx, name := range targets {
		if errs[idx] == nil {
			s.publish(i, EventObserved, name, text, nil)
		}
	}
	return err
}

func (s *Simulation) publish(i int, typ EventType, agent, content string, data map[string]any) {
	s.bus.Publish(Event{
		Type:    typ,
		RunID:   s.runID,
		Step:    i,
		SimTime: s.clock.Now(),
		Agent:   agent,
		Content: content,
		Data:    data,
	})
}

func (s *Simulation) fail(span trace.Span, i int, err error, halted bool) error {
	observe.Fail(span, err)
	s.publish(i, EventRunError, "", err.Error(), map[string]any{"halted": halted})
	s.ui.UpdateStatus("failed: " + err.Error())
	s.obs.Log().Error().Str("run", s.runID).Int("step", i).Err(err).Msg("run failed")
	return err
}
