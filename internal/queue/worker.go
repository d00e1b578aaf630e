package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/qforge-dev/qforge/internal/circuit"
	"github.com/qforge-dev/qforge/internal/events"
	"github.com/qforge-dev/qforge/internal/router"
	"github.com/qforge-dev/qforge/internal/simulation"
	"github.com/qforge-dev/qforge/internal/storage"
)

// pollInterval is how long an idle worker sleeps between claim attempts.
const pollInterval = 250 * time.Millisecond

// PoolConfig holds worker pool settings.
type PoolConfig struct {
	// Workers is the number of concurrent simulation workers.
	Workers int
	// EngineWorkers is the goroutine count handed to each state-vector
	// engine for large-state gate kernels. Zero lets the engine decide.
	EngineWorkers int
	// AmplitudeLimitQubits caps full amplitude payloads in stored results.
	AmplitudeLimitQubits int
}

// WorkerPool runs claimed jobs to completion. Each worker owns exactly one
// job at a time; jobs never share engine state.
type WorkerPool struct {
	cfg     PoolConfig
	manager *Manager
	results *storage.ResultStore
	routes  *router.Router
	bus     *events.Bus
	log     zerolog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	wg   sync.WaitGroup
	stop context.CancelFunc
}

// NewWorkerPool creates a worker pool. Start must be called to begin
// processing.
func NewWorkerPool(cfg PoolConfig, manager *Manager, results *storage.ResultStore, routes *router.Router, bus *events.Bus, log zerolog.Logger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	return &WorkerPool{
		cfg:     cfg,
		manager: manager,
		results: results,
		routes:  routes,
		bus:     bus,
		log:     log.With().Str("component", "worker_pool").Logger(),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start launches the workers. They run until Stop is called or the parent
// context is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.stop = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go p.runWorker(ctx, workerID)
	}
	p.log.Info().Int("workers", p.cfg.Workers).Msg("Worker pool started")
}

// Stop signals all workers and waits for in-flight jobs to reach a gate
// boundary and finish.
func (p *WorkerPool) Stop() {
	if p.stop != nil {
		p.stop()
	}
	p.wg.Wait()
	p.log.Info().Msg("Worker pool stopped")
}

// Cancel interrupts a running job's gate loop. It reports whether the job
// was running on this pool; queued jobs are cancelled through the manager.
func (p *WorkerPool) Cancel(jobID string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[jobID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (p *WorkerPool) runWorker(ctx context.Context, workerID string) {
	defer p.wg.Done()
	log := p.log.With().Str("worker", workerID).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.manager.Claim(workerID)
		if err != nil {
			log.Error().Err(err).Msg("Claim attempt failed")
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		p.execute(ctx, job, log)
	}
}

// execute runs one claimed job end to end and records its terminal state.
func (p *WorkerPool) execute(ctx context.Context, job *Job, log zerolog.Logger) {
	jobCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancels[job.ID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.cancels, job.ID)
		p.mu.Unlock()
		cancel()
	}()

	start := time.Now()

	prog, err := circuit.Compile(job.Circuit, job.Config.Parameters)
	if err != nil {
		p.fail(job.ID, err, log)
		return
	}

	if err := p.routes.CheckLane(router.LaneServer, prog.QubitCount); err != nil {
		p.fail(job.ID, err, log)
		return
	}

	cfg := *job.Config
	cfg.Workers = p.cfg.EngineWorkers
	cfg.AmplitudeLimitQubits = p.cfg.AmplitudeLimitQubits

	sink := NewProgressReporter(p.bus, p.manager, job.ID)
	result, err := simulation.Run(jobCtx, prog, cfg, sink)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Pool shutdown is not a user cancellation: leave the row in
			// the running state so startup recovery requeues it.
			if ctx.Err() != nil {
				log.Info().Str("job_id", job.ID).Msg("Job interrupted by shutdown, left for requeue")
				return
			}
			if markErr := p.manager.MarkCancelled(job.ID); markErr != nil {
				log.Error().Err(markErr).Str("job_id", job.ID).Msg("Failed to record cancellation")
			}
			return
		}
		p.fail(job.ID, err, log)
		return
	}

	ref, err := p.results.Put(result)
	if err != nil {
		p.fail(job.ID, fmt.Errorf("failed to persist result: %w", err), log)
		return
	}

	if err := p.manager.Complete(job.ID, ref); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job completed")
		return
	}

	log.Info().
		Str("job_id", job.ID).
		Int("qubits", prog.QubitCount).
		Int("gates", prog.GateCount).
		Dur("elapsed", time.Since(start)).
		Msg("Simulation job finished")
}

func (p *WorkerPool) fail(jobID string, cause error, log zerolog.Logger) {
	jobErr := &JobError{JobID: jobID, Reason: cause.Error()}
	log.Warn().Err(cause).Str("job_id", jobID).Msg("Simulation job failed")
	if err := p.manager.Fail(jobID, jobErr.Reason); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to mark job failed")
	}
}
