package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/qforge-dev/qforge/internal/circuit"
	"github.com/qforge-dev/qforge/internal/engine"
)

// progressStride is the gate cadence for progress events: one event every
// ten gates plus a final one at completion, so callers can render progress
// without per-gate traffic.
const progressStride = 10

// ProgressSink receives progress callbacks during a run. Implementations
// must not block; the gate loop calls them inline.
type ProgressSink interface {
	Progress(gatesApplied, totalGates int)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(gatesApplied, totalGates int)

// Progress implements ProgressSink.
func (f ProgressFunc) Progress(applied, total int) { f(applied, total) }

// Run executes a compiled program and assembles the result. Cancellation is
// cooperative: the context is checked once per gate boundary, and a
// cancelled run discards all accumulated progress rather than returning a
// partial state. sink may be nil.
func Run(ctx context.Context, prog *circuit.Program, cfg Config, sink ProgressSink) (*Result, error) {
	rng := newRNG(cfg.Seed)

	sv := engine.New(prog.QubitCount)
	sv.SetWorkers(cfg.Workers)

	total := len(prog.Gates)
	for i, g := range prog.Gates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := sv.Apply(g, rng); err != nil {
			return nil, fmt.Errorf("gate %d (%s): %w", i, g.Kind, err)
		}
		if sink != nil && ((i+1)%progressStride == 0 || i+1 == total) {
			sink.Progress(i+1, total)
		}
	}
	if sink != nil && total == 0 {
		sink.Progress(0, 0)
	}

	return assemble(sv, prog, cfg, rng)
}

// Simulate is the client-lane entry point: compile and run synchronously.
// It is a pure function of (circuit, config); callers debounce their own
// re-simulation, the engine keeps no cross-call state.
func Simulate(ctx context.Context, c *circuit.Circuit, cfg Config) (*Result, error) {
	prog, err := circuit.Compile(c, cfg.Parameters)
	if err != nil {
		return nil, err
	}
	return Run(ctx, prog, cfg, nil)
}

// newRNG builds the run's single randomness source. Everything random in a
// run (measurement collapse, shot sampling) draws from this one stream, so
// a fixed seed fixes the full outcome.
func newRNG(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// assemble packages the final state into a Result, enforcing the
// distribution invariant one last time before anything leaves the engine.
func assemble(sv *engine.StateVector, prog *circuit.Program, cfg Config, rng *rand.Rand) (*Result, error) {
	probs := sv.Probabilities()
	if sum := floats.Sum(probs); math.Abs(sum-1) > engine.NormTolerance {
		return nil, &engine.Error{Op: "assemble", Detail: fmt.Sprintf("probability sum %.12f departs from 1", sum)}
	}

	result := &Result{
		QubitCount:    prog.QubitCount,
		Probabilities: probs,
		ClassicalBits: classicalBits(sv),
	}

	if cfg.AmplitudeLimitQubits == 0 || prog.QubitCount <= cfg.AmplitudeLimitQubits {
		result.Amplitudes = encodeAmplitudes(sv.Amps, cfg.Precision)
	}

	if cfg.Shots > 0 {
		// With mid-circuit measurement the state is already collapsed;
		// sampling the collapsed distribution is still well defined.
		result.Counts = sv.Sample(cfg.Shots, rng)
	}

	return result, nil
}

func classicalBits(sv *engine.StateVector) []int {
	bits := make([]int, sv.QubitCount)
	for i, b := range sv.Classical {
		bits[i] = int(b)
	}
	return bits
}

// encodeAmplitudes converts the amplitude buffer to wire form. Single
// precision rounds through float32 deterministically, so both lanes produce
// identical bytes for identical runs.
func encodeAmplitudes(amps []complex128, precision Precision) []Amplitude {
	out := make([]Amplitude, len(amps))
	for i, a := range amps {
		re, im := real(a), imag(a)
		if precision == PrecisionSingle {
			re = float64(float32(re))
			im = float64(float32(im))
		}
		out[i] = Amplitude{Re: re, Im: im}
	}
	return out
}
