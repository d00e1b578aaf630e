package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qforge-dev/qforge/internal/circuit"
	"github.com/qforge-dev/qforge/internal/events"
	"github.com/qforge-dev/qforge/internal/simulation"
	"github.com/qforge-dev/qforge/internal/storage"
)

// Manager owns the job table. Workers coordinate only through it: the claim
// discipline guarantees a job is owned by at most one worker at a time, so
// workers never share mutable state.
type Manager struct {
	db  *storage.DB
	bus *events.Bus
	log zerolog.Logger
}

// NewManager creates a job queue manager.
func NewManager(db *storage.DB, bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		db:  db,
		bus: bus,
		log: log.With().Str("component", "queue_manager").Logger(),
	}
}

// Enqueue creates a job in the queued state and returns its id.
func (m *Manager) Enqueue(c *circuit.Circuit, cfg *simulation.Config) (string, error) {
	circuitBlob, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode circuit: %w", err)
	}
	configBlob, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	id := uuid.NewString()
	if _, err := m.db.Conn().Exec(
		"INSERT INTO jobs (id, circuit, config, status) VALUES (?, ?, ?, ?)",
		id, circuitBlob, configBlob, StatusQueued,
	); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.log.Info().
		Str("job_id", id).
		Int("qubits", c.QubitCount).
		Int("gates", len(c.Gates)).
		Msg("Enqueued simulation job")

	m.emitStatus(id, StatusQueued, "", "")
	return id, nil
}

// Claim atomically transitions the oldest queued job to running on behalf
// of workerID. It returns nil when the queue is empty. The compare-and-swap
// on status is what enforces at-most-one-worker-per-job.
func (m *Manager) Claim(workerID string) (*Job, error) {
	var id string
	err := m.db.Conn().QueryRow(
		"SELECT id FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1", StatusQueued,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find queued job: %w", err)
	}

	res, err := m.db.Conn().Exec(
		"UPDATE jobs SET status = ?, claimed_by = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?",
		StatusRunning, workerID, id, StatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Another worker claimed it between SELECT and UPDATE.
		return nil, nil
	}

	job, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("job_id", id).Str("worker", workerID).Msg("Job claimed")
	m.emitStatus(id, StatusRunning, "", "")
	return job, nil
}

// UpdateProgress records the job's progress fraction.
func (m *Manager) UpdateProgress(id string, fraction float64) error {
	_, err := m.db.Conn().Exec(
		"UPDATE jobs SET progress = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?",
		fraction, id, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress for job %s: %w", id, err)
	}
	return nil
}

// Complete marks a running job completed with its result reference.
func (m *Manager) Complete(id, resultRef string) error {
	if err := m.transition(id, StatusRunning, StatusCompleted,
		"result_ref = ?, progress = 1", resultRef); err != nil {
		return err
	}
	m.log.Info().Str("job_id", id).Str("result_ref", resultRef).Msg("Job completed")
	m.emitStatus(id, StatusCompleted, resultRef, "")
	return nil
}

// Fail marks a running job failed with an error message. No partial result
// is exposed and the job is not requeued.
func (m *Manager) Fail(id, message string) error {
	if err := m.transition(id, StatusRunning, StatusFailed, "error = ?", message); err != nil {
		return err
	}
	m.log.Warn().Str("job_id", id).Str("error", message).Msg("Job failed")
	m.emitStatus(id, StatusFailed, "", message)
	return nil
}

// Cancel requests cancellation. A queued job is cancelled immediately; a
// running job keeps its row in running state until the worker observes the
// cancellation at a gate boundary and calls MarkCancelled.
func (m *Manager) Cancel(id string) error {
	job, err := m.Get(id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobTerminal
	}
	if job.Status == StatusQueued {
		return m.MarkCancelled(id)
	}
	// Running: the worker pool's cancellation registry interrupts the
	// gate loop; nothing to persist yet.
	return nil
}

// MarkCancelled transitions a job to the cancelled state, discarding any
// accumulated progress.
func (m *Manager) MarkCancelled(id string) error {
	res, err := m.db.Conn().Exec(
		"UPDATE jobs SET status = ?, progress = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status IN (?, ?)",
		StatusCancelled, id, StatusQueued, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobTerminal
	}
	m.log.Info().Str("job_id", id).Msg("Job cancelled")
	m.emitStatus(id, StatusCancelled, "", "")
	return nil
}

// Get loads a job by id.
func (m *Manager) Get(id string) (*Job, error) {
	row := m.db.Conn().QueryRow(
		`SELECT id, circuit, config, status, progress,
		        COALESCE(result_ref, ''), COALESCE(error, ''), COALESCE(claimed_by, ''),
		        created_at, updated_at
		 FROM jobs WHERE id = ?`, id,
	)
	return scanJob(row)
}

// List returns the most recent jobs, newest first.
func (m *Manager) List(limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := m.db.Conn().Query(
		`SELECT id, circuit, config, status, progress,
		        COALESCE(result_ref, ''), COALESCE(error, ''), COALESCE(claimed_by, ''),
		        created_at, updated_at
		 FROM jobs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RecoverAbandoned requeues every job left in the running state by a
// previous process. Called once at startup before any worker starts: a
// running row whose claimant died with the process can never finish on its
// own, and Cancel on it would be a silent no-op. Requeued jobs restart from
// gate zero; there is no partial state to resume.
func (m *Manager) RecoverAbandoned() (int64, error) {
	res, err := m.db.Conn().Exec(
		"UPDATE jobs SET status = ?, progress = 0, claimed_by = NULL, updated_at = CURRENT_TIMESTAMP WHERE status = ?",
		StatusQueued, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to recover abandoned jobs: %w", err)
	}
	recovered, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		m.log.Warn().Int64("jobs", recovered).Msg("Requeued jobs abandoned by a previous run")
	}
	return recovered, nil
}

// PurgeTerminalOlderThan deletes terminal jobs past the retention window,
// returning the number removed.
func (m *Manager) PurgeTerminalOlderThan(hours int) (int64, error) {
	res, err := m.db.Conn().Exec(
		fmt.Sprintf(`DELETE FROM jobs
		 WHERE status IN (?, ?, ?) AND updated_at < datetime('now', '-%d hours')`, hours),
		StatusCompleted, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}
	return res.RowsAffected()
}

// transition applies a guarded status change with extra SET clauses.
func (m *Manager) transition(id string, from, to Status, setClause string, args ...interface{}) error {
	query := fmt.Sprintf(
		"UPDATE jobs SET status = ?, %s, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?",
		setClause,
	)
	queryArgs := append([]interface{}{to}, args...)
	queryArgs = append(queryArgs, id, from)

	res, err := m.db.Conn().Exec(query, queryArgs...)
	if err != nil {
		return fmt.Errorf("failed to transition job %s to %s: %w", id, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobTerminal
	}
	return nil
}

func (m *Manager) emitStatus(id string, status Status, resultRef, message string) {
	if m.bus == nil {
		return
	}
	m.bus.EmitTyped(statusEventType(status), "queue", &events.JobStatusData{
		JobID:     id,
		Status:    string(status),
		ResultRef: resultRef,
		Error:     message,
		Timestamp: time.Now(),
	})
}

func statusEventType(status Status) events.EventType {
	switch status {
	case StatusQueued:
		return events.JobQueued
	case StatusRunning:
		return events.JobStarted
	case StatusCompleted:
		return events.JobCompleted
	case StatusFailed:
		return events.JobFailed
	case StatusCancelled:
		return events.JobCancelled
	default:
		return events.JobProgress
	}
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job         Job
		circuitBlob []byte
		configBlob  []byte
	)
	err := row.Scan(
		&job.ID, &circuitBlob, &configBlob, &job.Status, &job.Progress,
		&job.ResultRef, &job.Error, &job.ClaimedBy,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Circuit = &circuit.Circuit{}
	if err := json.Unmarshal(circuitBlob, job.Circuit); err != nil {
		return nil, fmt.Errorf("failed to decode circuit for job %s: %w", job.ID, err)
	}
	job.Config = &simulation.Config{}
	if err := json.Unmarshal(configBlob, job.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config for job %s: %w", job.ID, err)
	}
	return &job, nil
}
