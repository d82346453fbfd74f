// Package journal keeps an append-only local record of command lifecycle
// events in SQLite for post-run diagnostics. It is never consulted for
// dispatch decisions; dedup state stays in memory.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Event names recorded for a command.
const (
	EventReceived = "received"
	EventAcked    = "acked"
	EventResult   = "result"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	ID        int64
	Timestamp time.Time
	RunID     string
	CommandID string
	Action    string
	Event     string
	ExitCode  int
	Error     string
}

// Journal writes command events to a SQLite file. A nil *Journal is a
// no-op, so callers can pass one through unconditionally.
type Journal struct {
	runID string
	db    *sql.DB
}

// Open creates (or reuses) the journal database at path.
func Open(runID, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	j := &Journal{runID: runID, db: db}
	if err := j.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS command_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		run_id TEXT NOT NULL,
		command_id TEXT NOT NULL,
		action TEXT NOT NULL,
		event TEXT NOT NULL,
		exit_code INTEGER NOT NULL DEFAULT 0,
		error_msg TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_command ON command_events(command_id);
	CREATE INDEX IF NOT EXISTS idx_run ON command_events(run_id);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record appends one event. Journal failures must never fail a command, so
// callers log the returned error and move on.
func (j *Journal) Record(commandID, action, event string, exitCode int, errMsg string) error {
	if j == nil || j.db == nil {
		return nil
	}
	query := `
		INSERT INTO command_events (timestamp, run_id, command_id, action, event, exit_code, error_msg)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := j.db.Exec(query, time.Now().UTC(), j.runID, commandID, action, event, exitCode, errMsg)
	return err
}

// Entries returns the recorded events for a command in insertion order.
func (j *Journal) Entries(commandID string, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	query := `
		SELECT id, timestamp, run_id, command_id, action, event, exit_code, COALESCE(error_msg, '')
		FROM command_events
		WHERE command_id = ?
		ORDER BY id ASC
		LIMIT ?
	`
	rows, err := j.db.Query(query, commandID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.RunID, &e.CommandID, &e.Action, &e.Event, &e.ExitCode, &e.Error); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
