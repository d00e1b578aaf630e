// Package circuit holds the declarative circuit model and the compiler that
// turns it into a validated, deterministically ordered gate program.
package circuit

import (
	"fmt"

	"github.com/qforge-dev/qforge/internal/gate"
)

// Circuit is the external circuit document: a qubit count plus gates in
// arbitrary submission order. The compiler is the sole validator of this
// document; a circuit that has not been compiled never reaches the engine.
type Circuit struct {
	QubitCount int         `json:"qubit_count"`
	Gates      []gate.Gate `json:"gates"`
}

// Program is a compiled circuit: gates sorted into the deterministic total
// order (column ascending, then first target qubit), plus derived metadata.
type Program struct {
	QubitCount int
	Gates      []gate.Gate
	Depth      int
	GateCount  int
	Histogram  map[gate.Kind]int
}

// Error reports a structurally invalid circuit. GateIndex is the position of
// the offending gate in the submitted (unsorted) gate list, or -1 when the
// problem is not attributable to a single gate.
type Error struct {
	GateIndex int
	Reason    string
}

func (e *Error) Error() string {
	if e.GateIndex < 0 {
		return fmt.Sprintf("invalid circuit: %s", e.Reason)
	}
	return fmt.Sprintf("invalid circuit: gate %d: %s", e.GateIndex, e.Reason)
}

func errf(index int, format string, args ...interface{}) *Error {
	return &Error{GateIndex: index, Reason: fmt.Sprintf(format, args...)}
}
