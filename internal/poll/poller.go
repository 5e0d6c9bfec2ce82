// Package poll drives asynchronous backend jobs to completion. A job is
// observed through a status endpoint; the poller queries it at a fixed
// interval until a terminal state, a timeout, or cancellation.
package poll

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusProcessing     Status = "processing"
	StatusAlreadyRunning Status = "already_running"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
)

// Terminal reports whether a status ends the poll loop. already_running is
// the backend's idempotent "a job for this kind is in flight" answer and is
// treated like processing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result is one observation of a job.
type Result struct {
	Status Status          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// FetchFunc queries the job's current status.
type FetchFunc func(ctx context.Context) (Result, error)

var (
	// ErrTimeout is returned when maxAttempts queries all came back
	// non-terminal. Treated like a failure by callers: no partial result.
	ErrTimeout = errors.New("poll: attempts exhausted")
	// ErrCancelled is returned when the handle was cancelled, typically
	// because a newer poll for the same job kind superseded this one.
	ErrCancelled = errors.New("poll: cancelled")
)

// JobError carries the server-supplied failure message for a failed job.
type JobError struct {
	Message string
}

func (e *JobError) Error() string {
	return e.Message
}

// UntilTerminal polls fetch every interval until it observes a terminal
// status. It performs at most maxAttempts queries; a completed status
// resolves with the payload, a failed status returns a JobError with the
// server message (or a generic fallback). The handle is checked before
// every query and before resolving, so a superseded poll never produces a
// state update.
func UntilTerminal(ctx context.Context, h *Handle, fetch FetchFunc, interval time.Duration, maxAttempts int) (json.RawMessage, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if h.Cancelled() {
			return nil, ErrCancelled
		}
		result, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		switch result.Status {
		case StatusCompleted:
			if h.Cancelled() {
				return nil, ErrCancelled
			}
			return result.Data, nil
		case StatusFailed:
			message := result.Error
			if message == "" {
				message = "analysis failed"
			}
			return nil, &JobError{Message: message}
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, ErrTimeout
}
