package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; sqlite would otherwise report SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			scenario TEXT,
			created_at TEXT,
			updated_at TEXT,
			status TEXT,
			metadata TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			created_at TEXT,
			sim_time TEXT,
			kind TEXT,
			agent TEXT,
			content TEXT,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY(run_id) REFERENCES runs(id)
		);`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS memories (
			run_id TEXT NOT NULL,
			agent TEXT NOT NULL,
			seq INTEGER NOT NULL,
			entry_id TEXT,
			text TEXT,
			timestamp TEXT,
			vector BLOB,
			PRIMARY KEY (run_id, agent, seq)
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// Configuration Implementation

func (s *SQLiteStore) SetConfig(key, value string) error {
	query := `INSERT INTO configuration (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := s.db.Exec(query, key, value)
	return err
}

// GetConfig returns "" for unknown keys.
func (s *SQLiteStore) GetConfig(key string) (string, error) {
	query := `SELECT value FROM configuration WHERE key = ?`
	row := s.db.QueryRow(query, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// Run Implementation

func (s *SQLiteStore) CreateRun(run *Run) error {
	metaJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}

	query := `INSERT INTO runs (id, scenario, created_at, updated_at, status, metadata) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, run.ID, run.Scenario, formatTime(run.CreatedAt), formatTime(run.UpdatedAt), run.Status, string(metaJSON))
	return err
}

func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	query := `SELECT id, scenario, created_at, updated_at, status, metadata FROM runs WHERE id = ?`
	run, err := scanRun(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

func (s *SQLiteStore) UpdateRunStatus(id, status string) error {
	query := `UPDATE runs SET updated_at = ?, status = ? WHERE id = ?`
	res, err := s.db.Exec(query, formatTime(time.Now()), status, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, scenario, created_at, updated_at, status, metadata FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var created, updated, metaJSON string
	if err := row.Scan(&run.ID, &run.Scenario, &created, &updated, &run.Status, &metaJSON); err != nil {
		return nil, err
	}
	run.CreatedAt = parseTime(created)
	run.UpdatedAt = parseTime(updated)
	if err := json.Unmarshal([]byte(metaJSON), &run.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &run, nil
}

// Transcript Implementation

func (s *SQLiteStore) AppendEvent(e *Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), -1) + 1 FROM events WHERE run_id = ?`, e.RunID).Scan(&next); err != nil {
		return fmt.Errorf("failed to allocate event seq: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	query := `INSERT INTO events (run_id, seq, created_at, sim_time, kind, agent, content) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.Exec(query, e.RunID, next, formatTime(e.CreatedAt), formatTime(e.SimTime), e.Kind, e.Agent, e.Content); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Seq = next
	return nil
}

func (s *SQLiteStore) ListEvents(runID string) ([]*Event, error) {
	query := `SELECT run_id, seq, created_at, sim_time, kind, agent, content FROM events WHERE run_id = ? ORDER BY seq`
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var created, simTime string
		if err := rows.Scan(&e.RunID, &e.Seq, &created, &simTime, &e.Kind, &e.Agent, &e.Content); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		e.SimTime = parseTime(simTime)
		events = append(events, &e)
	}
	return events, rows.Err()
}
