// Package journal persists the exchange history: one row per plugin process
// the host spawned, with the outcome it classified. The same database also
// carries the pending call queue.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when no exchange has the given ID.
var ErrNotFound = errors.New("exchange not found")

// Entry is one recorded exchange: a single spawn of a plugin process and
// the outcome the host classified for it.
type Entry struct {
	ID        string
	Plugin    string
	Method    string
	Status    string
	ExitCode  int
	Duration  time.Duration
	Message   string
	CreatedAt time.Time
}

// Filter narrows List results.
type Filter struct {
	Plugin string
	Status string
	Limit  int
}

// Journal wraps the host database.
type Journal struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path and ensures
// required tables exist. The path must be on a local filesystem; SQLite
// locking is not reliable over network mounts.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if err := validateFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// DB exposes the underlying handle for components sharing the database,
// such as the call queue.
func (j *Journal) DB() *sql.DB {
	return j.db
}

// bootstrap creates tables/indexes if missing.
func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS exchanges (
  id          TEXT PRIMARY KEY,
  plugin      TEXT NOT NULL,
  method      TEXT NOT NULL,
  status      TEXT NOT NULL,
  exit_code   INTEGER NOT NULL,
  duration_ms INTEGER NOT NULL,
  message     TEXT,
  created_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS call_queue (
  id           TEXT PRIMARY KEY,
  plugin       TEXT NOT NULL,
  method       TEXT NOT NULL,
  params       JSON,
  status       TEXT NOT NULL,
  created_at   TEXT NOT NULL,
  started_at   TEXT,
  completed_at TEXT,
  result       JSON,
  error        TEXT
);`,
		`CREATE INDEX IF NOT EXISTS exchanges_created_at_idx ON exchanges(created_at);`,
		`CREATE INDEX IF NOT EXISTS exchanges_plugin_created_at_idx ON exchanges(plugin, created_at);`,
		`CREATE INDEX IF NOT EXISTS call_queue_status_created_at_idx ON call_queue(status, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap journal: %w", err)
		}
	}
	return nil
}

// Record inserts one exchange row. A missing ID or CreatedAt is filled in.
// Returns the entry ID.
func (j *Journal) Record(ctx context.Context, e Entry) (string, error) {
	if e.Plugin == "" {
		return "", fmt.Errorf("plugin is empty")
	}
	if e.Method == "" {
		return "", fmt.Errorf("method is empty")
	}
	if e.Status == "" {
		return "", fmt.Errorf("status is empty")
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var message any
	if e.Message != "" {
		message = e.Message
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO exchanges(id, plugin, method, status, exit_code, duration_ms, message, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Plugin, e.Method, e.Status, e.ExitCode, e.Duration.Milliseconds(), message, e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("record exchange: %w", err)
	}
	return e.ID, nil
}

// Get returns a single exchange by ID.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx, `
SELECT id, plugin, method, status, exit_code, duration_ms, message, created_at
FROM exchanges
WHERE id = ?;
`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exchange: %w", err)
	}
	return e, nil
}

// List returns exchanges newest-first. A zero Limit means 50.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT id, plugin, method, status, exit_code, duration_ms, message, created_at
FROM exchanges
WHERE 1=1`
	args := []any{}
	if f.Plugin != "" {
		query += " AND plugin = ?"
		args = append(args, f.Plugin)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?;"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	return entries, nil
}

// Prune deletes exchanges older than the retention window and returns the
// number removed.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := j.db.ExecContext(ctx, `DELETE FROM exchanges WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune exchanges: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune exchanges: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e          Entry
		durationMS int64
		message    sql.NullString
		createdAtS string
	)
	if err := row.Scan(&e.ID, &e.Plugin, &e.Method, &e.Status, &e.ExitCode, &durationMS, &message, &createdAtS); err != nil {
		return nil, err
	}

	e.Duration = time.Duration(durationMS) * time.Millisecond
	if message.Valid {
		e.Message = message.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		e.CreatedAt = t
	}
	return &e, nil
}
