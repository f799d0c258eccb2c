package queue

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Terminal reports whether a call in this status is finished.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusTimedOut
}

// Call is one queued plugin invocation awaiting (or finished with) execution.
type Call struct {
	ID          string
	Plugin      string
	Method      string
	Params      json.RawMessage
	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      json.RawMessage
	Error       *string
}

// EnqueueRequest describes a call to queue.
type EnqueueRequest struct {
	Plugin string
	Method string
	Params json.RawMessage
}

var ErrCallNotFound = errors.New("call not found")
