// Package router decides which execution lane a circuit runs in and rejects
// infeasible jobs before the engine allocates anything.
package router

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/qforge-dev/qforge/internal/simulation"
)

// Lane identifies an execution context.
type Lane string

const (
	// LaneClient is the constrained synchronous context for small states.
	LaneClient Lane = "client"
	// LaneServer is the pooled asynchronous worker context.
	LaneServer Lane = "server"
)

// ResourceError reports a circuit whose state vector exceeds the memory
// ceiling of every available lane. Both figures are included so the caller
// can choose a larger lane or a smaller circuit; the simulation is never
// silently downgraded.
type ResourceError struct {
	RequiredBytes  int64
	AvailableBytes int64
	Lane           Lane
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("state vector requires %d bytes but lane %q has %d available",
		e.RequiredBytes, e.Lane, e.AvailableBytes)
}

// RequiredMemoryBytes is the wire-format size of a full amplitude payload:
// 2^n amplitudes at 16 bytes (double) or 8 bytes (single) each. This is the
// figure the estimate endpoint reports; lane admission never uses it.
func RequiredMemoryBytes(qubits int, precision simulation.Precision) int64 {
	return int64(1) << uint(qubits) * precision.BytesPerAmplitude()
}

// EngineMemoryBytes is the allocation cost of the dense state vector. The
// engine always evolves the state in complex128 regardless of the requested
// result precision, so admission is billed at 16 bytes per amplitude; single
// precision only narrows the result payload, never the working set.
func EngineMemoryBytes(qubits int) int64 {
	return int64(1) << uint(qubits) * simulation.PrecisionDouble.BytesPerAmplitude()
}

// Config holds the routing thresholds. The client/server boundary is
// configuration, not a constant: it depends on the memory ceiling of
// whichever environment is asking.
type Config struct {
	// ClientMaxQubits is the largest circuit the client lane accepts.
	ClientMaxQubits int
	// ClientMemoryBytes is the client lane's memory ceiling.
	ClientMemoryBytes int64
	// ServerMaxQubits is the largest circuit any lane accepts.
	ServerMaxQubits int
	// ServerMemoryBytes is the server lane's ceiling. Zero autodetects
	// from available system memory at construction time.
	ServerMemoryBytes int64
}

// Router picks execution lanes from qubit counts and memory budgets.
type Router struct {
	cfg Config
	log zerolog.Logger
}

// New builds a router, autodetecting the server memory ceiling when it is
// not configured.
func New(cfg Config, log zerolog.Logger) *Router {
	if cfg.ServerMemoryBytes == 0 {
		if vm, err := mem.VirtualMemory(); err == nil {
			// Leave headroom for the process itself and the job stores.
			cfg.ServerMemoryBytes = int64(vm.Available) / 2
			log.Info().
				Int64("server_memory_bytes", cfg.ServerMemoryBytes).
				Msg("Autodetected server lane memory ceiling")
		} else {
			log.Warn().Err(err).Msg("Failed to detect system memory, server lane disabled until configured")
		}
	}
	return &Router{
		cfg: cfg,
		log: log.With().Str("component", "router").Logger(),
	}
}

// Route returns the lane a circuit of the given size should execute in, or
// a *ResourceError when no lane can hold its state vector. Sizing uses the
// engine's real allocation so an admitted job can never fail by discovering
// the ceiling inside the engine.
func (r *Router) Route(qubits int) (Lane, error) {
	required := EngineMemoryBytes(qubits)

	if qubits <= r.cfg.ClientMaxQubits && required <= r.cfg.ClientMemoryBytes {
		return LaneClient, nil
	}

	if (r.cfg.ServerMaxQubits > 0 && qubits > r.cfg.ServerMaxQubits) || required > r.cfg.ServerMemoryBytes {
		return "", &ResourceError{
			RequiredBytes:  required,
			AvailableBytes: r.cfg.ServerMemoryBytes,
			Lane:           LaneServer,
		}
	}

	return LaneServer, nil
}

// CheckLane verifies a circuit fits a specific lane's ceiling. Used by the
// client lane handler, which cannot fall through to the server pool.
func (r *Router) CheckLane(lane Lane, qubits int) error {
	required := EngineMemoryBytes(qubits)
	ceiling := r.cfg.ClientMemoryBytes
	if lane == LaneServer {
		ceiling = r.cfg.ServerMemoryBytes
	}
	if required > ceiling {
		return &ResourceError{RequiredBytes: required, AvailableBytes: ceiling, Lane: lane}
	}
	return nil
}
