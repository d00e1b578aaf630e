// Package engine implements the state-vector simulation core.
//
// The package is deliberately free of non-stdlib dependencies so the same
// kernel can run inside a constrained sandboxed context and inside the
// server worker pool. All I/O, queueing, and storage live behind the
// simulation runner; nothing here knows about them.
//
// Qubit indices are engine preconditions, not runtime errors: callers must
// validate circuits through the compiler first, and an out-of-range index
// panics.
package engine

import (
	"fmt"
	"math"
	"sync"

	"github.com/qforge-dev/qforge/internal/gate"
)

// NormTolerance is the allowed drift of sum(|amp|^2) from 1 after a gate
// application or measurement collapse.
const NormTolerance = 1e-9

// parallelThreshold is the state size below which gate application stays
// serial; goroutine fan-out costs more than it saves on small vectors.
const parallelThreshold = 1 << 14

// Error reports an invariant violation during execution. It indicates a
// construction bug upstream and is fatal to the current run.
type Error struct {
	Op     string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine invariant violated in %s: %s", e.Op, e.Detail)
}

// StateVector holds the dense amplitude buffer for an n-qubit register.
// Basis index k encodes the state where bit b of k is the value of qubit b.
type StateVector struct {
	QubitCount int
	Amps       []complex128
	Classical  []int8 // measured bit per qubit, -1 when unmeasured

	workers int
}

// New returns an n-qubit register initialized to the all-zero basis state.
func New(qubits int) *StateVector {
	if qubits <= 0 {
		panic(fmt.Sprintf("engine: qubit count must be positive, got %d", qubits))
	}
	amps := make([]complex128, 1<<qubits)
	amps[0] = 1
	classical := make([]int8, qubits)
	for i := range classical {
		classical[i] = -1
	}
	return &StateVector{
		QubitCount: qubits,
		Amps:       amps,
		Classical:  classical,
		workers:    1,
	}
}

// SetWorkers sets the number of goroutines used for gate application.
// Results are bit-identical regardless of worker count: every amplitude
// pair is updated independently of every other pair within a single gate.
func (s *StateVector) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	s.workers = n
}

// Clone returns a deep copy sharing nothing with the receiver.
func (s *StateVector) Clone() *StateVector {
	amps := make([]complex128, len(s.Amps))
	copy(amps, s.Amps)
	classical := make([]int8, len(s.Classical))
	copy(classical, s.Classical)
	return &StateVector{
		QubitCount: s.QubitCount,
		Amps:       amps,
		Classical:  classical,
		workers:    s.workers,
	}
}

func (s *StateVector) checkQubit(q int) {
	if q < 0 || q >= s.QubitCount {
		panic(fmt.Sprintf("engine: qubit %d out of range [0, %d)", q, s.QubitCount))
	}
}

// ApplySingle applies a 2x2 unitary to the target qubit: every basis-index
// pair (k0, k1 = k0|1<<t) is rotated once, O(2^n) total.
func (s *StateVector) ApplySingle(target int, u gate.Matrix2) {
	s.checkQubit(target)
	s.forRange(func(lo, hi int) {
		bit := 1 << target
		for i := lo; i < hi; i++ {
			if i&bit != 0 {
				continue
			}
			j := i | bit
			a0, a1 := s.Amps[i], s.Amps[j]
			s.Amps[i] = u[0][0]*a0 + u[0][1]*a1
			s.Amps[j] = u[1][0]*a0 + u[1][1]*a1
		}
	})
}

// ApplyControlled applies a 2x2 unitary to the target, restricted to basis
// indices where every control bit is 1. Two controls gives Toffoli-class
// behavior.
func (s *StateVector) ApplyControlled(controls []int, target int, u gate.Matrix2) {
	s.checkQubit(target)
	mask := 0
	for _, c := range controls {
		s.checkQubit(c)
		mask |= 1 << c
	}
	s.forRange(func(lo, hi int) {
		bit := 1 << target
		for i := lo; i < hi; i++ {
			if i&bit != 0 || i&mask != mask {
				continue
			}
			j := i | bit
			a0, a1 := s.Amps[i], s.Amps[j]
			s.Amps[i] = u[0][0]*a0 + u[0][1]*a1
			s.Amps[j] = u[1][0]*a0 + u[1][1]*a1
		}
	})
}

// ApplySwap exchanges the amplitudes of every index pair whose two qubit
// bits differ. Acting only where the lower-indexed bit is 0 guards against
// processing a pair twice.
func (s *StateVector) ApplySwap(q1, q2 int) {
	s.checkQubit(q1)
	s.checkQubit(q2)
	if q1 == q2 {
		return
	}
	if q1 > q2 {
		q1, q2 = q2, q1
	}
	s.forRange(func(lo, hi int) {
		bit1 := 1 << q1
		bit2 := 1 << q2
		for i := lo; i < hi; i++ {
			if i&bit1 != 0 || i&bit2 == 0 {
				continue
			}
			j := (i &^ bit2) | bit1
			s.Amps[i], s.Amps[j] = s.Amps[j], s.Amps[i]
		}
	})
}

// forRange runs fn over chunks of the amplitude index space, in parallel
// when the state is large enough and more than one worker is configured.
// Chunk boundaries are safe for pairwise updates: only the index with the
// relevant bit clear drives each pair, so no two chunks touch the same pair.
func (s *StateVector) forRange(fn func(lo, hi int)) {
	n := len(s.Amps)
	if s.workers <= 1 || n < parallelThreshold {
		fn(0, n)
		return
	}

	chunk := (n + s.workers - 1) / s.workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

// Norm returns sum(|amp|^2).
func (s *StateVector) Norm() float64 {
	total := 0.0
	for _, a := range s.Amps {
		total += real(a)*real(a) + imag(a)*imag(a)
	}
	return total
}

// CheckNorm returns an *Error when the norm has drifted outside tolerance.
// op names the operation just performed, for the error message.
func (s *StateVector) CheckNorm(op string) error {
	if norm := s.Norm(); math.Abs(norm-1) > NormTolerance {
		return &Error{Op: op, Detail: fmt.Sprintf("norm %.12f departs from 1 beyond %g", norm, NormTolerance)}
	}
	return nil
}
