package cli

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/persona/internal/entity"
	"github.com/felixgeelhaar/persona/internal/guard"
	"github.com/felixgeelhaar/persona/internal/memory"
	"github.com/felixgeelhaar/persona/internal/observe"
	"github.com/felixgeelhaar/persona/internal/scenario"
	"github.com/felixgeelhaar/persona/internal/simulation"
	"github.com/felixgeelhaar/persona/internal/store"
	"github.com/felixgeelhaar/persona/internal/ui"
)

// Runner executes scenario files and records them in the store.
type Runner struct {
	Observer *observe.Observer
	Store    store.Storage
	Model    entity.LanguageModel
	Embedder memory.Embedder
	Guard    *guard.Guard
	UI       ui.UI
	Metadata map[string]string
}

func NewRunner(obs *observe.Observer, s store.Storage, m entity.LanguageModel, emb memory.Embedder, g *guard.Guard, u ui.UI) *Runner {
	if u == nil {
		u = ui.SilentUI{}
	}
	if g == nil {
		g = guard.New(guard.DefaultPolicy)
	}
	return &Runner{
		Observer: observe.OrDiscard(obs),
		Store:    s,
		Model:    m,
		Embedder: emb,
		Guard:    g,
		UI:       u,
	}
}

// Run loads, validates and executes the scenario at path. The returned
// result is non-nil whenever the run started.
func (r *Runner) Run(ctx context.Context, path string) (*simulation.Result, error) {
	log := r.Observer.Log().With().Str("path", path).Logger()

	if v := r.Guard.CheckScenario(path); v != nil {
		log.Error().Str("violation", v.Rule).Msg("scenario rejected")
		return nil, v
	}

	r.UI.UpdateStatus("Loading " + path)
	sc, err := scenario.Load(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to load scenario")
		return nil, err
	}
	for _, w := range scenario.Validate(sc).Warnings {
		log.Warn().Str("scenario", sc.Name).Msg(w)
	}

	sim, err := simulation.New(sc, r.Model, r.Embedder,
		simulation.WithObserver(r.Observer),
		simulation.WithGuard(r.Guard),
		simulation.WithUI(r.UI),
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to prepare simulation")
		return nil, err
	}

	rec, err := simulation.NewRecorder(r.Store, sim, r.metadata(path), r.Observer)
	if err != nil {
		return nil, err
	}

	result, runErr := sim.Run(ctx)

	if err := rec.SaveMemories(); err != nil {
		log.Warn().Err(err).Msg("failed to snapshot memories")
	}
	if err := rec.Err(); err != nil {
		log.Warn().Err(err).Msg("transcript incomplete")
	}
	if runErr != nil {
		return result, fmt.Errorf("run %s: %w", sim.RunID(), runErr)
	}
	return result, nil
}

func (r *Runner) metadata(path string) map[string]string {
	m := map[string]string{"path": path}
	for k, v := range r.Metadata {
		m[k] = v
	}
	return m
}
