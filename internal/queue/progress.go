package queue

import (
	"time"

	"github.com/qforge-dev/qforge/internal/events"
)

// ProgressReporter forwards gate-loop progress to the event bus and the job
// row. It throttles emission so a fast gate loop cannot flood subscribers.
type ProgressReporter struct {
	bus         *events.Bus
	manager     *Manager
	jobID       string
	lastReport  time.Time
	minInterval time.Duration
}

// NewProgressReporter creates a throttled progress reporter. The default
// throttle is 100ms (10 updates/sec max) for real-time feel.
func NewProgressReporter(bus *events.Bus, manager *Manager, jobID string) *ProgressReporter {
	return &ProgressReporter{
		bus:         bus,
		manager:     manager,
		jobID:       jobID,
		minInterval: 100 * time.Millisecond,
	}
}

// Progress implements simulation.ProgressSink. Completion (applied == total)
// always bypasses the throttle so the final fraction is never dropped.
func (pr *ProgressReporter) Progress(gatesApplied, totalGates int) {
	now := time.Now()
	if now.Sub(pr.lastReport) < pr.minInterval && gatesApplied != totalGates {
		return
	}
	pr.lastReport = now

	fraction := 1.0
	if totalGates > 0 {
		fraction = float64(gatesApplied) / float64(totalGates)
	}

	if pr.manager != nil {
		// Best effort: a lost progress row never fails the run.
		_ = pr.manager.UpdateProgress(pr.jobID, fraction)
	}

	if pr.bus == nil {
		return
	}
	pr.bus.EmitTyped(events.JobProgress, "queue", &events.JobStatusData{
		JobID:  pr.jobID,
		Status: "progress",
		Progress: &events.JobProgressInfo{
			GatesApplied: gatesApplied,
			TotalGates:   totalGates,
			Fraction:     fraction,
		},
		Timestamp: now,
	})
}
