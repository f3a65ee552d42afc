package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// SaveMemories writes a batch of memory records in one transaction.
// Re-saving a record with the same (run, agent, seq) replaces it.
func (s *SQLiteStore) SaveMemories(records []MemoryRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT OR REPLACE INTO memories (run_id, agent, seq, entry_id, text, timestamp, vector) VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, r := range records {
		vecBuf := new(bytes.Buffer)
		if err := binary.Write(vecBuf, binary.LittleEndian, r.Vector); err != nil {
			return fmt.Errorf("failed to encode vector: %w", err)
		}
		if _, err := tx.Exec(query, r.RunID, r.Agent, r.Seq, r.EntryID, r.Text, formatTime(r.Timestamp), vecBuf.Bytes()); err != nil {
			return fmt.Errorf("failed to save memory %s/%d: %w", r.Agent, r.Seq, err)
		}
	}
	return tx.Commit()
}

// ListMemories returns an agent's memories for a run in insertion order.
func (s *SQLiteStore) ListMemories(runID, agent string) ([]MemoryRecord, error) {
	query := `SELECT run_id, agent, seq, entry_id, text, timestamp, vector FROM memories WHERE run_id = ? AND agent = ? ORDER BY seq`
	rows, err := s.db.Query(query, runID, agent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemoryRecord
	for rows.Next() {
		var r MemoryRecord
		var ts string
		var vecBlob []byte
		if err := rows.Scan(&r.RunID, &r.Agent, &r.Seq, &r.EntryID, &r.Text, &ts, &vecBlob); err != nil {
			return nil, err
		}
		r.Timestamp = parseTime(ts)

		r.Vector = make([]float32, len(vecBlob)/4)
		if err := binary.Read(bytes.NewReader(vecBlob), binary.LittleEndian, &r.Vector); err != nil {
			return nil, fmt.Errorf("failed to decode vector: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
