package queue

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/qforge-dev/qforge/internal/storage"
)

// Janitor periodically removes terminal jobs and their results once they
// age past the retention window, then checkpoints the WAL so neither
// database file grows without bound.
type Janitor struct {
	cron           *cron.Cron
	manager        *Manager
	results        *storage.ResultStore
	jobsDB         *storage.DB
	resultsDB      *storage.DB
	retentionHours int
	log            zerolog.Logger
}

// NewJanitor creates a retention janitor. retentionHours <= 0 disables it.
func NewJanitor(manager *Manager, results *storage.ResultStore, jobsDB, resultsDB *storage.DB, retentionHours int, log zerolog.Logger) *Janitor {
	return &Janitor{
		cron:           cron.New(),
		manager:        manager,
		results:        results,
		jobsDB:         jobsDB,
		resultsDB:      resultsDB,
		retentionHours: retentionHours,
		log:            log.With().Str("component", "janitor").Logger(),
	}
}

// Start registers the hourly sweep and begins the schedule.
func (j *Janitor) Start() error {
	if j.retentionHours <= 0 {
		j.log.Info().Msg("Retention disabled, janitor idle")
		return nil
	}
	if _, err := j.cron.AddFunc("@hourly", j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	j.log.Info().Int("retention_hours", j.retentionHours).Msg("Janitor started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.log.Info().Msg("Janitor stopped")
}

// Sweep runs one retention pass immediately, outside the schedule.
func (j *Janitor) Sweep() {
	j.sweep()
}

func (j *Janitor) sweep() {
	jobs, err := j.manager.PurgeTerminalOlderThan(j.retentionHours)
	if err != nil {
		j.log.Error().Err(err).Msg("Job purge failed")
	}

	results, err := j.results.DeleteOlderThan(j.retentionHours)
	if err != nil {
		j.log.Error().Err(err).Msg("Result purge failed")
	}

	if err := j.jobsDB.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Error().Err(err).Msg("Jobs WAL checkpoint failed")
	}
	if err := j.resultsDB.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Error().Err(err).Msg("Results WAL checkpoint failed")
	}

	if jobs > 0 || results > 0 {
		j.log.Info().
			Int64("jobs_purged", jobs).
			Int64("results_purged", results).
			Msg("Retention sweep completed")
	}
}
