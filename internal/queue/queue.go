// Package queue persists calls accepted for asynchronous execution. The
// worker claims them oldest-first and writes back the outcome, so a caller
// holding the ID can poll until the call turns terminal.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Queue struct {
	db *sql.DB
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.Plugin == "" {
		return "", fmt.Errorf("plugin is empty")
	}
	if req.Method == "" {
		return "", fmt.Errorf("method is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var params any
	if len(req.Params) > 0 {
		params = string(req.Params)
	}

	_, err := q.db.ExecContext(ctx, `
INSERT INTO call_queue(id, plugin, method, params, status, created_at)
VALUES(?, ?, ?, ?, ?, ?);
`, id, req.Plugin, req.Method, params, StatusQueued, now)
	if err != nil {
		return "", fmt.Errorf("enqueue call: %w", err)
	}
	return id, nil
}

// Dequeue claims the oldest queued call and marks it running. Returns
// (nil, nil) if the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Call, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM call_queue
  WHERE status = ?
  ORDER BY created_at ASC, rowid ASC
  LIMIT 1
)
UPDATE call_queue
SET status = ?, started_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING id, plugin, method, params, status, created_at, started_at, completed_at, result, error;
`, StatusQueued, StatusRunning, now)

	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue call: %w", err)
	}
	return c, nil
}

// Complete marks a call terminal, storing the response result on success or
// the error message otherwise.
func (q *Queue) Complete(ctx context.Context, callID string, status Status, result []byte, errMsg *string) error {
	if callID == "" {
		return fmt.Errorf("callID is empty")
	}
	if !status.Terminal() {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	completedAt := time.Now().UTC().Format(time.RFC3339Nano)

	var resultVal any
	if len(result) > 0 {
		resultVal = string(result)
	}

	res, err := q.db.ExecContext(ctx, `
UPDATE call_queue
SET status = ?, completed_at = ?, result = ?, error = ?
WHERE id = ?;
`, status, completedAt, resultVal, errMsg, callID)
	if err != nil {
		return fmt.Errorf("complete call: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete call: %w", err)
	}
	if n == 0 {
		return ErrCallNotFound
	}
	return nil
}

// Depth returns the number of calls waiting to be claimed.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var depth int
	err := q.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM call_queue WHERE status = ?;
`, StatusQueued).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

// Get returns a single call by ID.
func (q *Queue) Get(ctx context.Context, callID string) (*Call, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT id, plugin, method, params, status, created_at, started_at, completed_at, result, error
FROM call_queue
WHERE id = ?;
`, callID)

	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*Call, error) {
	var (
		c            Call
		params       sql.NullString
		statusS      string
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
		result       sql.NullString
		errMsg       sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Plugin, &c.Method, &params, &statusS, &createdAtS, &startedAtS, &completedAtS, &result, &errMsg); err != nil {
		return nil, err
	}

	c.Status = Status(statusS)
	if params.Valid {
		c.Params = []byte(params.String)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		c.CreatedAt = t
	}
	if startedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, startedAtS.String); err == nil {
			c.StartedAt = &t
		}
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			c.CompletedAt = &t
		}
	}
	if result.Valid {
		c.Result = []byte(result.String)
	}
	if errMsg.Valid {
		c.Error = &errMsg.String
	}
	return &c, nil
}
