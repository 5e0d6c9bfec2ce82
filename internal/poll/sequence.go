package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Phase is one stage of a multi-stage job. Submit starts the backend job
// and may already return a terminal result (the backend answers completed
// for idempotent re-submissions); Fetch observes its status afterwards.
type Phase struct {
	Name   string
	Submit func(ctx context.Context) (Result, error)
	Fetch  FetchFunc
}

// PhaseError identifies which phase of a sequence failed.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// RunSequence executes phases strictly in order: a phase's job is submitted
// only after the previous phase reached completed. A failure in any phase
// aborts the sequence with a PhaseError; results already delivered through
// onResult are kept, there is no rollback.
func RunSequence(ctx context.Context, h *Handle, phases []Phase, interval time.Duration, maxAttempts int, onResult func(name string, data json.RawMessage)) error {
	for _, phase := range phases {
		if h.Cancelled() {
			return ErrCancelled
		}

		submitted, err := phase.Submit(ctx)
		if err != nil {
			return &PhaseError{Phase: phase.Name, Err: err}
		}

		var data json.RawMessage
		if submitted.Status == StatusCompleted {
			data = submitted.Data
		} else if submitted.Status == StatusFailed {
			message := submitted.Error
			if message == "" {
				message = "analysis failed"
			}
			return &PhaseError{Phase: phase.Name, Err: &JobError{Message: message}}
		} else {
			data, err = UntilTerminal(ctx, h, phase.Fetch, interval, maxAttempts)
			if err != nil {
				if err == ErrCancelled {
					return err
				}
				return &PhaseError{Phase: phase.Name, Err: err}
			}
		}

		if h.Cancelled() {
			return ErrCancelled
		}
		if onResult != nil {
			onResult(phase.Name, data)
		}
	}
	return nil
}
