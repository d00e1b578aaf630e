package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/qforge-dev/qforge/internal/circuit"
	"github.com/qforge-dev/qforge/internal/config"
	"github.com/qforge-dev/qforge/internal/queue"
	"github.com/qforge-dev/qforge/internal/router"
	"github.com/qforge-dev/qforge/internal/simulation"
	"github.com/qforge-dev/qforge/internal/storage"
)

// Handlers implements the API endpoints over both execution lanes.
type Handlers struct {
	routes    *router.Router
	manager   *queue.Manager
	pool      *queue.WorkerPool
	results   *storage.ResultStore
	jobsDB    *storage.DB
	resultsDB *storage.DB
	cfg       *config.Config
	log       zerolog.Logger
	startedAt time.Time
}

// NewHandlers creates the API handler set.
func NewHandlers(routes *router.Router, manager *queue.Manager, pool *queue.WorkerPool, results *storage.ResultStore, jobsDB, resultsDB *storage.DB, cfg *config.Config, log zerolog.Logger) *Handlers {
	return &Handlers{
		routes:    routes,
		manager:   manager,
		pool:      pool,
		results:   results,
		jobsDB:    jobsDB,
		resultsDB: resultsDB,
		cfg:       cfg,
		log:       log.With().Str("component", "handlers").Logger(),
		startedAt: time.Now(),
	}
}

// SimulateRequest is the payload for both the sync endpoint and job
// submission.
type SimulateRequest struct {
	Circuit *circuit.Circuit   `json:"circuit"`
	Config  *simulation.Config `json:"config,omitempty"`
}

func (req *SimulateRequest) normalize() {
	if req.Config == nil {
		req.Config = &simulation.Config{}
	}
	if req.Config.Precision == "" {
		req.Config.Precision = simulation.PrecisionDouble
	}
}

// HandleSimulate runs a circuit synchronously in the client lane.
// POST /api/simulate
func (h *Handlers) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Circuit == nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.normalize()

	lane, err := h.routes.Route(req.Circuit.QubitCount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if lane != router.LaneClient {
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": "circuit exceeds the synchronous lane, submit it as a job",
			"lane":  string(lane),
		})
		return
	}

	cfg := *req.Config
	cfg.AmplitudeLimitQubits = h.cfg.AmplitudeLimitQubits

	result, err := simulation.Simulate(r.Context(), req.Circuit, cfg)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// EstimateResponse reports the resources a circuit would need, per lane.
type EstimateResponse struct {
	QubitCount    int    `json:"qubit_count"`
	RequiredBytes int64  `json:"required_bytes"`
	Lane          string `json:"lane,omitempty"`
	Feasible      bool   `json:"feasible"`
	Error         string `json:"error,omitempty"`
}

// HandleEstimate sizes a circuit without running it.
// POST /api/estimate
func (h *Handlers) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Circuit == nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.normalize()

	// Compile first so an invalid circuit is reported as invalid rather
	// than merely infeasible.
	if _, err := circuit.Compile(req.Circuit, req.Config.Parameters); err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := EstimateResponse{
		QubitCount:    req.Circuit.QubitCount,
		RequiredBytes: router.RequiredMemoryBytes(req.Circuit.QubitCount, req.Config.Precision),
	}
	lane, err := h.routes.Route(req.Circuit.QubitCount)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Lane = string(lane)
		resp.Feasible = true
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleSubmitJob enqueues a circuit for the server lane.
// POST /api/jobs
func (h *Handlers) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Circuit == nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.normalize()

	// Validate and size up front so structurally broken or infeasible
	// circuits are rejected at submission, not minutes later by a worker.
	if _, err := circuit.Compile(req.Circuit, req.Config.Parameters); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.routes.CheckLane(router.LaneServer, req.Circuit.QubitCount); err != nil {
		h.writeDomainError(w, err)
		return
	}

	id, err := h.manager.Enqueue(req.Circuit, req.Config)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue job")
		h.writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(queue.StatusQueued)})
}

// HandleListJobs returns recent jobs.
// GET /api/jobs
func (h *Handlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.manager.List(50)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		h.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*queue.Job{}
	}
	h.writeJSON(w, http.StatusOK, jobs)
}

// HandleGetJob returns one job with its status and progress.
// GET /api/jobs/{id}
func (h *Handlers) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// HandleCancelJob cancels a queued or running job.
// POST /api/jobs/{id}/cancel
func (h *Handlers) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Cancel(id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	// Interrupt the gate loop if a worker currently owns the job.
	h.pool.Cancel(id)
	h.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelling"})
}

// HandleGetResult returns a stored result by reference.
// GET /api/results/{ref}
func (h *Handlers) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.results.Get(chi.URLParam(r, "ref"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleSystemStatus reports lane limits and store health.
// GET /api/system/status
func (h *Handlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"limits": map[string]interface{}{
			"client_max_qubits": h.cfg.ClientMaxQubits,
			"server_max_qubits": h.cfg.ServerMaxQubits,
			"workers":           h.cfg.Workers,
		},
	}

	for name, db := range map[string]*storage.DB{"jobs": h.jobsDB, "results": h.resultsDB} {
		if err := db.HealthCheck(ctx); err != nil {
			status["status"] = "degraded"
			status[name+"_db"] = err.Error()
		} else {
			status[name+"_db"] = "ok"
		}
	}

	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, status)
}

// HandleHealth is the liveness endpoint.
// GET /health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps domain error types onto HTTP status codes.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	var circErr *circuit.Error
	var resErr *router.ResourceError

	switch {
	case errors.As(err, &circErr):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":      circErr.Error(),
			"gate_index": circErr.GateIndex,
		})
	case errors.As(err, &resErr):
		h.writeJSON(w, http.StatusRequestEntityTooLarge, map[string]interface{}{
			"error":           resErr.Error(),
			"required_bytes":  resErr.RequiredBytes,
			"available_bytes": resErr.AvailableBytes,
			"lane":            string(resErr.Lane),
		})
	case errors.Is(err, queue.ErrJobNotFound), errors.Is(err, storage.ErrResultNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrJobTerminal):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, http.StatusRequestTimeout, "simulation cancelled")
	default:
		h.log.Error().Err(err).Msg("Unhandled request error")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, code int, msg string) {
	h.writeJSON(w, code, map[string]string{"error": msg})
}
