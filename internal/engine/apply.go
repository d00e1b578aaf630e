package engine

import (
	"fmt"
	"math/rand"

	"github.com/qforge-dev/qforge/internal/gate"
)

// Apply executes a single compiled gate against the state. Dispatch over
// gate kinds is exhaustive; an unknown kind is a compiler bug and returns an
// *Error. Measurement draws from rng; all other kinds ignore it.
//
// A classically-conditioned gate is skipped unless the conditioning qubit
// has been measured as 1. The compiler guarantees the measurement happens
// in an earlier column.
func (s *StateVector) Apply(g gate.Gate, rng *rand.Rand) error {
	if g.ClassicalControl != nil && s.Classical[*g.ClassicalControl] != 1 {
		return nil
	}

	switch g.Kind {
	case gate.KindH, gate.KindX, gate.KindY, gate.KindZ,
		gate.KindS, gate.KindSDG, gate.KindT, gate.KindTDG,
		gate.KindRX, gate.KindRY, gate.KindRZ, gate.KindU3:
		u, err := gate.Matrix(g.Kind, g.Params)
		if err != nil {
			return &Error{Op: "apply", Detail: err.Error()}
		}
		s.ApplySingle(g.Targets[0], u)

	case gate.KindCX, gate.KindCZ, gate.KindCCX:
		u, err := gate.Matrix(g.Kind, g.Params)
		if err != nil {
			return &Error{Op: "apply", Detail: err.Error()}
		}
		s.ApplyControlled(g.Controls, g.Targets[0], u)

	case gate.KindSWAP:
		s.ApplySwap(g.Targets[0], g.Targets[1])

	case gate.KindMeasure:
		s.Measure(g.Targets[0], rng)

	default:
		return &Error{Op: "apply", Detail: fmt.Sprintf("unknown gate kind %q", g.Kind)}
	}

	return s.CheckNorm(string(g.Kind))
}
