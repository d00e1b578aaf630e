package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qforge-dev/qforge/internal/circuit"
	"github.com/qforge-dev/qforge/internal/config"
	"github.com/qforge-dev/qforge/internal/events"
	"github.com/qforge-dev/qforge/internal/gate"
	"github.com/qforge-dev/qforge/internal/queue"
	"github.com/qforge-dev/qforge/internal/router"
	"github.com/qforge-dev/qforge/internal/simulation"
	"github.com/qforge-dev/qforge/internal/storage"
)

type testServer struct {
	srv     *Server
	manager *queue.Manager
	pool    *queue.WorkerPool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	jobsDB, err := storage.New(storage.Config{
		Path: filepath.Join(dir, "jobs.db"), Profile: storage.ProfileCache, Name: "jobs",
	})
	require.NoError(t, err)
	require.NoError(t, jobsDB.Migrate())
	t.Cleanup(func() { _ = jobsDB.Close() })

	resultsDB, err := storage.New(storage.Config{
		Path: filepath.Join(dir, "results.db"), Profile: storage.ProfileStandard, Name: "results",
	})
	require.NoError(t, err)
	require.NoError(t, resultsDB.Migrate())
	t.Cleanup(func() { _ = resultsDB.Close() })

	cfg := &config.Config{
		Port:                 0,
		ClientMaxQubits:      4,
		ClientMemoryBytes:    1 << 20,
		ServerMaxQubits:      10,
		ServerMemoryBytes:    1 << 20,
		Workers:              1,
		AmplitudeLimitQubits: 24,
	}

	log := zerolog.Nop()
	bus := events.NewBus(log)
	routes := router.New(router.Config{
		ClientMaxQubits:   cfg.ClientMaxQubits,
		ClientMemoryBytes: cfg.ClientMemoryBytes,
		ServerMaxQubits:   cfg.ServerMaxQubits,
		ServerMemoryBytes: cfg.ServerMemoryBytes,
	}, log)
	manager := queue.NewManager(jobsDB, bus, log)
	results := storage.NewResultStore(resultsDB, log)
	pool := queue.NewWorkerPool(queue.PoolConfig{Workers: 1}, manager, results, routes, bus, log)

	srv := New(Config{
		Log:       log,
		Config:    cfg,
		Router:    routes,
		Manager:   manager,
		Pool:      pool,
		Results:   results,
		Bus:       bus,
		JobsDB:    jobsDB,
		ResultsDB: resultsDB,
	})
	return &testServer{srv: srv, manager: manager, pool: pool}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func bellRequest() *SimulateRequest {
	seed := int64(7)
	return &SimulateRequest{
		Circuit: &circuit.Circuit{
			QubitCount: 2,
			Gates: []gate.Gate{
				{Kind: gate.KindH, Targets: []int{0}, Column: 0},
				{Kind: gate.KindCX, Targets: []int{1}, Controls: []int{0}, Column: 1},
			},
		},
		Config: &simulation.Config{Shots: 100, Seed: &seed},
	}
}

// TestHandleHealth checks the liveness endpoint.
func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

// TestHandleSimulate_Bell runs a small circuit synchronously.
func TestHandleSimulate_Bell(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/simulate", bellRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result simulation.Result
	decodeBody(t, rec, &result)
	assert.Equal(t, 2, result.QubitCount)
	assert.InDelta(t, 0.5, result.Probabilities[0], 1e-10)
	assert.InDelta(t, 0.5, result.Probabilities[3], 1e-10)
	assert.Len(t, result.Amplitudes, 4)
}

// TestHandleSimulate_BadBody rejects unparseable payloads.
func TestHandleSimulate_BadBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/simulate", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	ts.srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/simulate", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestHandleSimulate_InvalidCircuit maps compile errors to 422 with the
// offending gate index.
func TestHandleSimulate_InvalidCircuit(t *testing.T) {
	ts := newTestServer(t)

	req := &SimulateRequest{
		Circuit: &circuit.Circuit{
			QubitCount: 2,
			Gates: []gate.Gate{
				{Kind: gate.KindH, Targets: []int{0}},
				{Kind: gate.KindX, Targets: []int{7}},
			},
		},
	}
	rec := ts.do(t, http.MethodPost, "/api/simulate", req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Error     string `json:"error"`
		GateIndex int    `json:"gate_index"`
	}
	decodeBody(t, rec, &body)
	assert.NotEmpty(t, body.Error)
	assert.Equal(t, 1, body.GateIndex)
}

// TestHandleSimulate_ServerLaneRedirect verifies circuits beyond the client
// lane are pushed toward job submission.
func TestHandleSimulate_ServerLaneRedirect(t *testing.T) {
	ts := newTestServer(t)

	req := &SimulateRequest{
		Circuit: &circuit.Circuit{QubitCount: 6, Gates: []gate.Gate{
			{Kind: gate.KindH, Targets: []int{0}},
		}},
	}
	rec := ts.do(t, http.MethodPost, "/api/simulate", req)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "server", body["lane"])
}

// TestHandleSimulate_Infeasible verifies circuits too large for any lane
// return 413 with both byte figures.
func TestHandleSimulate_Infeasible(t *testing.T) {
	ts := newTestServer(t)

	req := &SimulateRequest{
		Circuit: &circuit.Circuit{QubitCount: 11, Gates: []gate.Gate{
			{Kind: gate.KindH, Targets: []int{0}},
		}},
	}
	rec := ts.do(t, http.MethodPost, "/api/simulate", req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var body struct {
		RequiredBytes  int64  `json:"required_bytes"`
		AvailableBytes int64  `json:"available_bytes"`
		Lane           string `json:"lane"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, int64(2048)*16, body.RequiredBytes)
	assert.Equal(t, "server", body.Lane)
}

// TestHandleEstimate covers the feasible and infeasible sizing paths.
func TestHandleEstimate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/estimate", bellRequest())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EstimateResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Feasible)
	assert.Equal(t, "client", resp.Lane)
	assert.Equal(t, int64(64), resp.RequiredBytes)

	big := &SimulateRequest{
		Circuit: &circuit.Circuit{QubitCount: 11, Gates: []gate.Gate{
			{Kind: gate.KindH, Targets: []int{0}},
		}},
	}
	rec = ts.do(t, http.MethodPost, "/api/estimate", big)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = EstimateResponse{}
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Feasible)
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.Lane)
}

// TestJobLifecycle_EndToEnd submits a job, lets the pool run it, and fetches
// the stored result through the API.
func TestJobLifecycle_EndToEnd(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ts.pool.Start(ctx)
	defer ts.pool.Stop()

	rec := ts.do(t, http.MethodPost, "/api/jobs", bellRequest())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var submitted map[string]string
	decodeBody(t, rec, &submitted)
	id := submitted["id"]
	require.NotEmpty(t, id)
	assert.Equal(t, "queued", submitted["status"])

	var job queue.Job
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec = ts.do(t, http.MethodGet, "/api/jobs/"+id, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decodeBody(t, rec, &job)
		if job.Status.Terminal() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.Equal(t, queue.StatusCompleted, job.Status)
	require.NotEmpty(t, job.ResultRef)

	rec = ts.do(t, http.MethodGet, "/api/results/"+job.ResultRef, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result simulation.Result
	decodeBody(t, rec, &result)
	assert.Equal(t, 2, result.QubitCount)
	assert.InDelta(t, 0.5, result.Probabilities[0], 1e-10)
}

// TestHandleSubmitJob_RejectsUpfront verifies structurally broken and
// oversized circuits never reach the queue.
func TestHandleSubmitJob_RejectsUpfront(t *testing.T) {
	ts := newTestServer(t)

	bad := &SimulateRequest{
		Circuit: &circuit.Circuit{QubitCount: 1, Gates: []gate.Gate{
			{Kind: gate.Kind("warp"), Targets: []int{0}},
		}},
	}
	rec := ts.do(t, http.MethodPost, "/api/jobs", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	big := &SimulateRequest{
		Circuit: &circuit.Circuit{QubitCount: 11, Gates: []gate.Gate{
			{Kind: gate.KindH, Targets: []int{0}},
		}},
	}
	rec = ts.do(t, http.MethodPost, "/api/jobs", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

// TestHandleCancelJob cancels a queued job through the API.
func TestHandleCancelJob(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/jobs", bellRequest())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var submitted map[string]string
	decodeBody(t, rec, &submitted)
	id := submitted["id"]

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cancelling")

	rec = ts.do(t, http.MethodGet, "/api/jobs/"+id, nil)
	var job queue.Job
	decodeBody(t, rec, &job)
	assert.Equal(t, queue.StatusCancelled, job.Status)

	// A second cancel hits the terminal guard.
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", id), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// TestNotFoundMappings covers the 404 paths for jobs and results.
func TestNotFoundMappings(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/jobs/missing-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/results/missing-ref", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestHandleSystemStatus reports limits and healthy stores.
func TestHandleSystemStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	decodeBody(t, rec, &status)
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "ok", status["jobs_db"])
	assert.Equal(t, "ok", status["results_db"])

	limits, ok := status["limits"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(4), limits["client_max_qubits"])
	assert.Equal(t, float64(10), limits["server_max_qubits"])
}
