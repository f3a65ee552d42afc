package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusHalted    = "halted"
)

// Run represents one execution of a scenario.
type Run struct {
	ID        string
	Scenario  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    string
	Metadata  map[string]string
}

// Event is one line of a run's transcript.
type Event struct {
	RunID     string
	Seq       int
	CreatedAt time.Time
	SimTime   time.Time
	Kind      string
	Agent     string
	Content   string
}

// MemoryRecord is a persisted memory entry of one agent in one run.
type MemoryRecord struct {
	RunID     string
	Agent     string
	Seq       int
	EntryID   string
	Text      string
	Timestamp time.Time
	Vector    []float32
}

// Storage defines the interface for persistence
type Storage interface {
	// Run Management
	CreateRun(run *Run) error
	GetRun(id string) (*Run, error)
	UpdateRunStatus(id, status string) error
	ListRuns(limit int) ([]*Run, error)

	// Transcript
	// AppendEvent assigns the next sequence number of the run to e.
	AppendEvent(e *Event) error
	ListEvents(runID string) ([]*Event, error)

	// Memory snapshots
	SaveMemories(records []MemoryRecord) error
	ListMemories(runID, agent string) ([]MemoryRecord, error)

	// Configuration Management
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)

	Close() error
}
