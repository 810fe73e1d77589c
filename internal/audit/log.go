// Package audit persists the capture log. Every CapturedFailure event is
// appended as one immutable row; a restarted process replays a bounded
// tail to rebuild its pending backlog. Appends are best-effort by
// contract: callers log failures and continue, a lost audit row must
// never fail the capture itself.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"codegarden/internal/logging"
	"codegarden/internal/pattern"
)

// DefaultReplayLimit bounds the startup replay window.
const DefaultReplayLimit = 200

// Capture-log events.
const (
	EventCaptured  = "captured"
	EventHealing   = "healing"
	EventAttempt   = "attempt"
	EventRecycled  = "recycled"
	EventExhausted = "exhausted"
)

// Entry is one appended event with the failure snapshot taken at the time.
type Entry struct {
	ID       int64                    `json:"id"`
	Event    string                   `json:"event"`
	Failure  *pattern.CapturedFailure `json:"failure"`
	LoggedAt time.Time                `json:"logged_at"`
}

// Log is the SQLite-backed append-only capture log.
type Log struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the capture log database.
func Open(dbPath string) (*Log, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	logging.Audit("Opening capture log at %s", dbPath)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture log: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		logging.AuditDebug("busy_timeout pragma failed: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS capture_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		failure_id TEXT NOT NULL,
		event TEXT NOT NULL,
		snapshot TEXT NOT NULL,
		logged_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_capture_log_failure ON capture_log(failure_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize capture log schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Append records one event. The snapshot is the failure's full state at
// append time, so replay needs no joins.
func (l *Log) Append(ctx context.Context, event string, cf *pattern.CapturedFailure) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot, err := json.Marshal(cf)
	if err != nil {
		return fmt.Errorf("failed to marshal failure snapshot: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO capture_log (failure_id, event, snapshot, logged_at) VALUES (?, ?, ?, ?)`,
		cf.ID, event, string(snapshot), time.Now())
	if err != nil {
		return fmt.Errorf("failed to append %s event: %w", event, err)
	}
	logging.AuditDebug("Appended %s for failure %s", event, cf.ID)
	return nil
}

// Replay returns the last limit entries, oldest first. Rows whose snapshot
// no longer parses are skipped, not fatal.
func (l *Log) Replay(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultReplayLimit
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, event, snapshot, logged_at FROM capture_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to replay capture log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var snapshot string
		if err := rows.Scan(&e.ID, &e.Event, &snapshot, &e.LoggedAt); err != nil {
			logging.AuditDebug("Skipping unreadable log row: %v", err)
			continue
		}
		var cf pattern.CapturedFailure
		if err := json.Unmarshal([]byte(snapshot), &cf); err != nil {
			logging.AuditDebug("Skipping undecodable snapshot in row %d: %v", e.ID, err)
			continue
		}
		e.Failure = &cf
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Tail was read newest-first.
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// Restore rebuilds the pending backlog from the replay window: the latest
// snapshot per failure wins, terminal failures are dropped, and failures
// caught mid-heal come back as pending so the next cycle retries them.
// Runs once at startup, before any live capture activity.
func (l *Log) Restore(ctx context.Context, limit int) ([]*pattern.CapturedFailure, error) {
	entries, err := l.Replay(ctx, limit)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*pattern.CapturedFailure)
	for _, e := range entries {
		latest[e.Failure.ID] = e.Failure
	}

	var pending []*pattern.CapturedFailure
	for _, cf := range latest {
		switch cf.Status {
		case pattern.StatusRecycled, pattern.StatusExhausted:
			continue
		case pattern.StatusHealing:
			cf.Status = pattern.StatusPending
		}
		pending = append(pending, cf)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CapturedAt.Before(pending[j].CapturedAt) })

	logging.Audit("Restored %d pending capture(s) from a %d-entry replay window", len(pending), len(entries))
	return pending, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}
