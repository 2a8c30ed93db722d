// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/task"
)

const costSchema = `
CREATE TABLE IF NOT EXISTS cost_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	task_type TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	latency_ms INTEGER NOT NULL,
	success INTEGER NOT NULL,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_records_provider ON cost_records(provider);
CREATE INDEX IF NOT EXISTS idx_cost_records_timestamp ON cost_records(timestamp);
`

// SQLStore persists cost records to SQLite through an async write queue.
// Writes never block the request path: a full queue drops the record with a
// log line, and insert failures are logged and swallowed.
type SQLStore struct {
	db    *sql.DB
	queue chan CostRecord
	done  chan struct{}
	once  sync.Once
}

// NewSQLStore opens (creating if needed) the SQLite database at dbPath and
// starts the write worker.
func NewSQLStore(dbPath string) (*SQLStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("ledger database path cannot be empty")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if _, err := db.Exec(costSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}

	return newSQLStore(db), nil
}

// newSQLStore wraps an open database handle. Split out so tests can inject a
// mock handle.
func newSQLStore(db *sql.DB) *SQLStore {
	s := &SQLStore{
		db:    db,
		queue: make(chan CostRecord, 256),
		done:  make(chan struct{}),
	}
	go s.worker()
	return s
}

// Append implements Store. Non-blocking; a full queue drops the record.
func (s *SQLStore) Append(rec CostRecord) {
	select {
	case s.queue <- rec:
	default:
		log.Warn("ledger write queue full, dropping cost record")
	}
}

func (s *SQLStore) worker() {
	defer close(s.done)
	for rec := range s.queue {
		s.insert(rec)
	}
}

func (s *SQLStore) insert(rec CostRecord) {
	_, err := s.db.Exec(
		`INSERT INTO cost_records (provider, model, task_type, input_tokens, output_tokens, total_tokens, cost_usd, latency_ms, success, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Provider, rec.Model, string(rec.TaskType),
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens,
		rec.CostUSD, rec.Latency.Milliseconds(), boolToInt(rec.Success), rec.Timestamp.UTC(),
	)
	if err != nil {
		log.Errorf("failed to persist cost record: %v", err)
	}
}

// RecordsBefore returns persisted records older than cutoff, oldest first.
// Used by the archiver.
func (s *SQLStore) RecordsBefore(cutoff time.Time) ([]CostRecord, error) {
	rows, err := s.db.Query(
		`SELECT provider, model, task_type, input_tokens, output_tokens, total_tokens, cost_usd, latency_ms, success, timestamp
		 FROM cost_records WHERE timestamp < ? ORDER BY timestamp`,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CostRecord
	for rows.Next() {
		var rec CostRecord
		var taskType string
		var latencyMs int64
		var success int
		if err := rows.Scan(&rec.Provider, &rec.Model, &taskType,
			&rec.InputTokens, &rec.OutputTokens, &rec.TotalTokens,
			&rec.CostUSD, &latencyMs, &success, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.TaskType = task.Type(taskType)
		rec.Latency = time.Duration(latencyMs) * time.Millisecond
		rec.Success = success != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteBefore removes persisted records older than cutoff. Used by the
// archiver after a successful export.
func (s *SQLStore) DeleteBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM cost_records WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close drains the write queue and closes the database.
func (s *SQLStore) Close() error {
	s.once.Do(func() {
		close(s.queue)
	})
	<-s.done
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
