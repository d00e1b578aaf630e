package events

import "time"

// EventData is the interface all typed event payloads implement.
type EventData interface {
	// EventType returns the event type this data is associated with.
	EventType() EventType
}

// JobProgressInfo carries gate-loop progress for a running job.
type JobProgressInfo struct {
	GatesApplied int     `json:"gates_applied"`
	TotalGates   int     `json:"total_gates"`
	Fraction     float64 `json:"fraction"`
	Message      string  `json:"message,omitempty"`
}

// JobStatusData contains data for job lifecycle and progress events.
type JobStatusData struct {
	JobID     string           `json:"job_id"`
	Status    string           `json:"status"`
	ResultRef string           `json:"result_ref,omitempty"`
	Error     string           `json:"error,omitempty"`
	Progress  *JobProgressInfo `json:"progress,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventType returns the event type for JobStatusData based on its status.
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "queued":
		return JobQueued
	case "running":
		return JobStarted
	case "progress":
		return JobProgress
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	case "cancelled":
		return JobCancelled
	default:
		return JobProgress
	}
}

// SystemStatusData contains data for SystemStatusChanged events.
type SystemStatusData struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for SystemStatusData.
func (d *SystemStatusData) EventType() EventType {
	return SystemStatusChanged
}
