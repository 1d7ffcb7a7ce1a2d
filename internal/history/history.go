// Package history persists finalized install results to a host-local SQLite
// database so an operator can answer "what ran here and when" without
// correlating logs across machines.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pallav98/windows-ws/internal/installer"
)

// Store is the run-history database. Safe for use from one process at a
// time, which matches the one-run-per-host-per-agent operational model.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Record is one persisted install run.
type Record struct {
	ID        int64
	Software  string
	Status    string
	ExitCode  int
	Details   []string
	CreatedAt time.Time
}

// Open creates or opens the history database under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "provision_history.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			software TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			details TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_software ON runs(software, created_at)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &Store{db: db}, nil
}

// Append stores one finalized result.
func (s *Store) Append(res *installer.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	details, err := json.Marshal(res.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT INTO runs (software, status, exit_code, details) VALUES (?, ?, ?, ?)",
		res.Software, string(res.Status), res.ExitCode, string(details),
	)
	if err != nil {
		return fmt.Errorf("append run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, software, status, exit_code, details, created_at
		FROM runs ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var details string
		if err := rows.Scan(&r.ID, &r.Software, &r.Status, &r.ExitCode, &details, &r.CreatedAt); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(details), &r.Details); err != nil {
			r.Details = []string{details}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of stored runs.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0
	}
	return count
}

// Prune removes runs older than maxAge and returns how many were deleted.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	result, err := s.db.Exec("DELETE FROM runs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
