// Package runlog keeps an append-only ledger of per-document pipeline state
// transitions in a local SQLite database. Like artifacts, the ledger is an
// audit aid: failures to record are warnings, never pipeline errors.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ledgerline/invoice2csv/constants"
)

const ddl = `
CREATE TABLE IF NOT EXISTS runs (
	session_id    TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	template_path TEXT NOT NULL,
	invoice_dir   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS transitions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	document   TEXT NOT NULL,
	status     TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions (session_id, document);
`

// Store wraps the ledger database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun registers one pipeline run under its session ID.
func (s *Store) StartRun(ctx context.Context, sessionID, templatePath, invoiceDir string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (session_id, started_at, template_path, invoice_dir) VALUES (?, ?, ?, ?)`,
		sessionID, time.Now().Format(time.RFC3339), templatePath, invoiceDir,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Record appends one state transition for a document. Previous transitions
// are never mutated.
func (s *Store) Record(ctx context.Context, sessionID, document string, status constants.DocStatus, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (session_id, document, status, reason, at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, document, string(status), reason, time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// Transition is one recorded state change.
type Transition struct {
	Document string
	Status   constants.DocStatus
	Reason   string
}

// Transitions returns a run's transitions in insertion order.
func (s *Store) Transitions(ctx context.Context, sessionID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document, status, reason FROM transitions WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transition
	for rows.Next() {
		var t Transition
		var status string
		if err := rows.Scan(&t.Document, &status, &t.Reason); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Status = constants.DocStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}
