package simulation

import (
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/persona/internal/observe"
	"github.com/felixgeelhaar/persona/internal/store"
)

// Recorder persists a run's events as its transcript and tracks the run's
// status in the store.
type Recorder struct {
	store store.Storage
	sim   *Simulation
	obs   *observe.Observer

	mu  sync.Mutex
	err error
}

// NewRecorder creates the run record for sim and subscribes to its bus.
func NewRecorder(st store.Storage, sim *Simulation, metadata map[string]string, obs *observe.Observer) (*Recorder, error) {
	run := &store.Run{
		ID:        sim.RunID(),
		Scenario:  sim.Scenario().Name,
		CreatedAt: time.Now(),
		Status:    store.StatusRunning,
		Metadata:  metadata,
	}
	if err := st.CreateRun(run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	r := &Recorder{store: st, sim: sim, obs: observe.OrDiscard(obs)}
	sim.Bus().SubscribeAll(r.handle)
	return r, nil
}

func (r *Recorder) handle(e Event) {
	rec := &store.Event{
		RunID:     e.RunID,
		CreatedAt: e.Timestamp,
		SimTime:   e.SimTime,
		Kind:      string(e.Type),
		Agent:     e.Agent,
		Content:   e.Content,
	}
	if err := r.store.AppendEvent(rec); err != nil {
		r.record(fmt.Errorf("failed to append %s event: %w", e.Type, err))
		return
	}

	var status string
	switch e.Type {
	case EventRunComplete:
		status = store.StatusCompleted
	case EventRunError:
		status = store.StatusFailed
		if halted, _ := e.Data["halted"].(bool); halted {
			status = store.StatusHalted
		}
	default:
		return
	}
	if err := r.store.UpdateRunStatus(e.RunID, status); err != nil {
		r.record(fmt.Errorf("failed to update run status: %w", err))
	}
}

func (r *Recorder) record(err error) {
	r.obs.Log().Error().Str("run", r.sim.RunID()).Err(err).Msg("transcript write failed")
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// Err returns the first write failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// SaveMemories snapshots every agent's memory into the store.
func (r *Recorder) SaveMemories() error {
	var records []store.MemoryRecord
	for _, name := range r.sim.Agents() {
		for _, m := range r.sim.Memories(name) {
			records = append(records, store.MemoryRecord{
				RunID:     r.sim.RunID(),
				Agent:     name,
				Seq:       m.Seq,
				EntryID:   m.ID,
				Text:      m.Text,
				Timestamp: m.Timestamp,
				Vector:    m.Embedding,
			})
		}
	}
	if len(records) == 0 {
		return nil
	}
	return r.store.SaveMemories(records)
}
