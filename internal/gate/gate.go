// Package gate defines the supported gate kinds and their unitary matrices.
package gate

// Kind identifies a gate type. The set of kinds is closed: the engine
// dispatches over these constants exhaustively, so adding a kind is a
// localized, compile-time-checked change.
type Kind string

const (
	KindH       Kind = "h"
	KindX       Kind = "x"
	KindY       Kind = "y"
	KindZ       Kind = "z"
	KindS       Kind = "s"
	KindSDG     Kind = "sdg"
	KindT       Kind = "t"
	KindTDG     Kind = "tdg"
	KindRX      Kind = "rx"
	KindRY      Kind = "ry"
	KindRZ      Kind = "rz"
	KindU3      Kind = "u3"
	KindCX      Kind = "cx"
	KindCZ      Kind = "cz"
	KindCCX     Kind = "ccx"
	KindSWAP    Kind = "swap"
	KindMeasure Kind = "measure"
)

// Gate is a single operation in a circuit. Params and SymbolicParams are
// parallel slices: a non-empty string at index i means the parameter is
// symbolic and must be resolved from the simulation config before execution.
type Gate struct {
	Kind           Kind      `json:"kind"`
	Targets        []int     `json:"targets"`
	Controls       []int     `json:"controls,omitempty"`
	Params         []float64 `json:"params,omitempty"`
	SymbolicParams []string  `json:"symbolic_params,omitempty"`
	Column         int       `json:"column"`

	// ClassicalControl conditions the gate on a previously measured qubit:
	// the gate is applied only when that qubit's classical bit equals 1.
	// The compiler requires the gate's column to be strictly greater than
	// the column of the measurement it depends on.
	ClassicalControl *int `json:"classical_control,omitempty"`
}

// Arity describes the fixed shape of a gate kind.
type Arity struct {
	Targets  int
	Controls int
	Params   int
}

// arities is the single source of truth for gate shapes. The compiler
// validates every gate against this table.
var arities = map[Kind]Arity{
	KindH:       {Targets: 1},
	KindX:       {Targets: 1},
	KindY:       {Targets: 1},
	KindZ:       {Targets: 1},
	KindS:       {Targets: 1},
	KindSDG:     {Targets: 1},
	KindT:       {Targets: 1},
	KindTDG:     {Targets: 1},
	KindRX:      {Targets: 1, Params: 1},
	KindRY:      {Targets: 1, Params: 1},
	KindRZ:      {Targets: 1, Params: 1},
	KindU3:      {Targets: 1, Params: 3},
	KindCX:      {Targets: 1, Controls: 1},
	KindCZ:      {Targets: 1, Controls: 1},
	KindCCX:     {Targets: 1, Controls: 2},
	KindSWAP:    {Targets: 2},
	KindMeasure: {Targets: 1},
}

// ArityOf returns the declared shape for a kind. The second return value is
// false for unknown kinds.
func ArityOf(kind Kind) (Arity, bool) {
	a, ok := arities[kind]
	return a, ok
}

// Known reports whether the kind is part of the supported set.
func Known(kind Kind) bool {
	_, ok := arities[kind]
	return ok
}

// IsUnitary reports whether the kind applies a unitary to the state.
// Measurement is the only non-unitary kind.
func (k Kind) IsUnitary() bool {
	return k != KindMeasure
}

// Base returns the single-qubit kind whose matrix a controlled kind applies.
// Non-controlled kinds return themselves.
func (k Kind) Base() Kind {
	switch k {
	case KindCX, KindCCX:
		return KindX
	case KindCZ:
		return KindZ
	default:
		return k
	}
}
