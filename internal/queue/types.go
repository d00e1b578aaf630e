// Package queue implements the server-lane job orchestrator: a SQLite-backed
// job queue with an at-most-one-claim discipline, a worker pool, and
// throttled progress reporting.
package queue

import (
	"fmt"
	"time"

	"github.com/qforge-dev/qforge/internal/circuit"
	"github.com/qforge-dev/qforge/internal/simulation"
)

// Status is a job lifecycle state. Terminal states are completed, failed,
// and cancelled; a job is immutable once terminal.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is one unit of server-lane work.
type Job struct {
	ID        string             `json:"id"`
	Circuit   *circuit.Circuit   `json:"circuit"`
	Config    *simulation.Config `json:"config"`
	Status    Status             `json:"status"`
	Progress  float64            `json:"progress"`
	ResultRef string             `json:"result_ref,omitempty"`
	Error     string             `json:"error,omitempty"`
	ClaimedBy string             `json:"claimed_by,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// JobError reports a worker-level failure, distinct from a logical engine
// error: the job is marked failed, the queue entry is not requeued, and no
// partial result is visible.
type JobError struct {
	JobID  string
	Reason string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Reason)
}

// ErrJobNotFound is returned when a job id has no row.
var ErrJobNotFound = fmt.Errorf("job not found")

// ErrJobTerminal is returned when a transition is attempted on a job that
// has already reached a terminal state.
var ErrJobTerminal = fmt.Errorf("job is already in a terminal state")
