// Package history persists completed answer runs to a local SQLite database
// so past research can be reviewed without re-spending API quota.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sleuth/internal/logging"
	"sleuth/internal/orchestrator"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	query       TEXT NOT NULL,
	focus_mode  TEXT NOT NULL,
	answer      TEXT NOT NULL,
	sources     TEXT NOT NULL,
	elapsed_ms  INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

// Entry is one stored run.
type Entry struct {
	ID        int64
	Query     string
	FocusMode string
	Answer    string
	Sources   []orchestrator.Source
	Elapsed   time.Duration
	CreatedAt time.Time
}

// Store is an append-only run log backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}

	logging.History("history store open at %s", path)
	return &Store{db: db}, nil
}

// Save records a completed run. Sources are stored as JSON alongside the
// answer text.
func (s *Store) Save(ctx context.Context, answer *orchestrator.FinalAnswer) (int64, error) {
	sources, err := json.Marshal(answer.Sources)
	if err != nil {
		return 0, fmt.Errorf("encode sources: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (query, focus_mode, answer, sources, elapsed_ms) VALUES (?, ?, ?, ?, ?)`,
		answer.Query, string(answer.FocusMode), answer.Answer, string(sources), answer.Elapsed.Milliseconds())
	if err != nil {
		logging.HistoryError("save run failed: %v", err)
		return 0, fmt.Errorf("save run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save run id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, focus_mode, answer, sources, elapsed_ms, created_at
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			sources   string
			elapsedMS int64
		)
		if err := rows.Scan(&e.ID, &e.Query, &e.FocusMode, &e.Answer, &sources, &elapsedMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
			logging.HistoryError("run %d has corrupt sources: %v", e.ID, err)
			e.Sources = nil
		}
		e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, focus_mode, answer, sources, elapsed_ms, created_at FROM runs WHERE id = ?`, id)

	var (
		e         Entry
		sources   string
		elapsedMS int64
	)
	if err := row.Scan(&e.ID, &e.Query, &e.FocusMode, &e.Answer, &sources, &elapsedMS, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %d not found", id)
		}
		return nil, fmt.Errorf("load run: %w", err)
	}
	if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
		e.Sources = nil
	}
	e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &e, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
