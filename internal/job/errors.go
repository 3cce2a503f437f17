// Package job owns batch orchestration: bounded-concurrency dispatch of
// per-prospect pipelines, race-free counter aggregation, the terminal-status
// policy, and the pause/resume/cancel/retry lifecycle.
package job

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

// ErrNotFound is returned for operations on an unknown job.
var ErrNotFound = eris.New("job: not found")

// PreconditionError rejects an invalid lifecycle transition synchronously,
// leaving the job state unchanged.
type PreconditionError struct {
	Op     string
	Status model.JobStatus
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("job: cannot %s job in status %q: %s", e.Op, e.Status, e.Reason)
	}
	return fmt.Sprintf("job: cannot %s job in status %q", e.Op, e.Status)
}

// IsPrecondition reports whether the error is a rejected lifecycle transition.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

func precondition(op string, status model.JobStatus, reason string) error {
	return &PreconditionError{Op: op, Status: status, Reason: reason}
}
