// Package store implements the durable local cache backing the sync engine.
//
// The store is an embedded SQLite database (WAL mode for concurrent reads)
// holding per-entity-type tables scoped by workspace. Every row carries sync
// metadata: its origin (local user action vs remote change feed) and its
// sync state relative to the remote source of truth.
//
// All writes are whole-record replacements keyed by primary id, implemented
// as upserts. Applying the same remote event twice therefore yields the same
// stored state, which is what makes the change router idempotent.
//
// The store never retries I/O internally; failures surface as *StoreError
// and callers decide whether to retry.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/taskhive/taskhive/internal/types"
)

// ErrNotFound is returned by point lookups for ids that are not cached.
var ErrNotFound = errors.New("record not found")

// StoreError wraps a storage-layer I/O failure. The store does not retry;
// the caller decides.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// Store wraps the SQLite connection plus the change-signal hub that feeds
// the coordinator's live views.
type Store struct {
	conn *sql.DB
	path string

	watchMu  sync.Mutex
	watchers map[watchKey][]chan struct{}
}

type watchKey struct {
	workspaceID string
	table       types.Table
}

// Open creates or opens the cache database at path.
//
// The caller must Close() when done. The schema is created on first open
// and InitSchema is idempotent.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, storeErr("open", fmt.Errorf("failed to create database directory: %w", err))
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, storeErr("open", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, storeErr("open", fmt.Errorf("failed to ping database: %w", err))
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:     conn,
		path:     path,
		watchers: make(map[watchKey][]chan struct{}),
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, storeErr("open", fmt.Errorf("failed to apply %q: %w", pragma, err))
		}
	}

	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return storeErr("close", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the tables and indexes if they don't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		priority INTEGER NOT NULL DEFAULT 2,
		assignee_id TEXT,
		remarks TEXT,  -- JSON array
		due_at TEXT,
		created_at TEXT NOT NULL,
		last_modified TEXT NOT NULL,
		origin TEXT NOT NULL,
		sync_state TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT,
		role TEXT,
		last_modified TEXT NOT NULL,
		origin TEXT NOT NULL,
		sync_state TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		title TEXT,
		message TEXT,
		type TEXT NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		last_modified TEXT NOT NULL,
		origin TEXT NOT NULL,
		sync_state TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		workspace_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT,
		last_modified TEXT NOT NULL,
		PRIMARY KEY (workspace_id, key)
	);

	-- Alert dedup ledger. Survives process death so a restart never
	-- re-alerts an already-dispatched notification.
	CREATE TABLE IF NOT EXISTS dispatched_alerts (
		id TEXT PRIMARY KEY,
		dispatched_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_workspace ON tasks(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(workspace_id, status);
	CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(workspace_id, assignee_id);
	CREATE INDEX IF NOT EXISTS idx_employees_workspace ON employees(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_workspace ON notifications(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(workspace_id, recipient_id, is_read);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return storeErr("init schema", err)
	}

	return nil
}

// Watch returns a channel that receives a signal after every successful
// put/delete in the given workspace+table scope, plus a cancel func.
//
// Signals coalesce: the channel has capacity one and sends never block a
// writer. Consumers re-query the store on each signal.
func (s *Store) Watch(workspaceID string, table types.Table) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	key := watchKey{workspaceID: workspaceID, table: table}

	s.watchMu.Lock()
	s.watchers[key] = append(s.watchers[key], ch)
	s.watchMu.Unlock()

	cancel := func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		chans := s.watchers[key]
		for i, c := range chans {
			if c == ch {
				s.watchers[key] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
	}

	return ch, cancel
}

// signal notifies watchers of a write in the given scope.
func (s *Store) signal(workspaceID string, table types.Table) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for _, ch := range s.watchers[watchKey{workspaceID: workspaceID, table: table}] {
		select {
		case ch <- struct{}{}:
		default:
			// A pending signal is already queued; coalesce.
		}
	}
}

// WipeUserData deletes all cached rows. Only the logout path calls this.
func (s *Store) WipeUserData(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("wipe", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"tasks", "employees", "notifications", "settings", "dispatched_alerts"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return storeErr("wipe "+table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("wipe", err)
	}
	return nil
}

// MarkAlertDispatched records a notification id in the dedup ledger.
// It reports true exactly once per id: the first caller wins, every
// replay afterwards gets false.
func (s *Store) MarkAlertDispatched(ctx context.Context, id string) (bool, error) {
	res, err := s.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO dispatched_alerts (id, dispatched_at) VALUES (?, ?)",
		id, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, storeErr("mark alert dispatched", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("mark alert dispatched", err)
	}
	return n == 1, nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
