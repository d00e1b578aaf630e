package circuit

import (
	"sort"

	"github.com/qforge-dev/qforge/internal/gate"
)

// Compile validates the circuit and returns its gates in the deterministic
// total order. Validation happens in a fixed sequence: qubit index ranges,
// target/control disjointness, arity, parameter resolution, and finally
// classical-control ordering. The first violation aborts compilation; there
// is no partial recovery.
//
// params supplies values for symbolic gate parameters. Resolution mutates
// nothing: resolved values are written into the copied gates of the returned
// program, never back into the input circuit.
func Compile(c *Circuit, params map[string]float64) (*Program, error) {
	if c.QubitCount <= 0 {
		return nil, errf(-1, "qubit count must be positive, got %d", c.QubitCount)
	}

	gates := make([]gate.Gate, len(c.Gates))
	copy(gates, c.Gates)

	for i := range gates {
		if err := validateIndices(i, &gates[i], c.QubitCount); err != nil {
			return nil, err
		}
	}
	for i := range gates {
		if err := validateDisjoint(i, &gates[i]); err != nil {
			return nil, err
		}
	}
	for i := range gates {
		if err := validateArity(i, &gates[i]); err != nil {
			return nil, err
		}
	}
	for i := range gates {
		if err := resolveParams(i, &gates[i], params); err != nil {
			return nil, err
		}
	}
	if err := validateClassicalOrdering(gates); err != nil {
		return nil, err
	}

	// Deterministic total order: column ascending, then first target qubit.
	// Stable so that equal keys keep submission order.
	sort.SliceStable(gates, func(a, b int) bool {
		if gates[a].Column != gates[b].Column {
			return gates[a].Column < gates[b].Column
		}
		return gates[a].Targets[0] < gates[b].Targets[0]
	})

	prog := &Program{
		QubitCount: c.QubitCount,
		Gates:      gates,
		GateCount:  len(gates),
		Histogram:  make(map[gate.Kind]int, len(gates)),
	}
	for _, g := range gates {
		prog.Histogram[g.Kind]++
		if g.Column+1 > prog.Depth {
			prog.Depth = g.Column + 1
		}
	}
	return prog, nil
}

func validateIndices(i int, g *gate.Gate, qubits int) error {
	if g.Column < 0 {
		return errf(i, "column must be non-negative, got %d", g.Column)
	}
	if len(g.Targets) == 0 {
		return errf(i, "gate %q has no target qubits", g.Kind)
	}
	for _, t := range g.Targets {
		if t < 0 || t >= qubits {
			return errf(i, "target qubit %d out of range [0, %d)", t, qubits)
		}
	}
	for _, c := range g.Controls {
		if c < 0 || c >= qubits {
			return errf(i, "control qubit %d out of range [0, %d)", c, qubits)
		}
	}
	if g.ClassicalControl != nil {
		if cc := *g.ClassicalControl; cc < 0 || cc >= qubits {
			return errf(i, "classical control bit %d out of range [0, %d)", cc, qubits)
		}
	}
	return nil
}

func validateDisjoint(i int, g *gate.Gate) error {
	seen := make(map[int]bool, len(g.Targets)+len(g.Controls))
	for _, t := range g.Targets {
		if seen[t] {
			return errf(i, "duplicate target qubit %d", t)
		}
		seen[t] = true
	}
	for _, c := range g.Controls {
		if seen[c] {
			return errf(i, "control qubit %d overlaps a target", c)
		}
		seen[c] = true
	}
	return nil
}

func validateArity(i int, g *gate.Gate) error {
	arity, ok := gate.ArityOf(g.Kind)
	if !ok {
		return errf(i, "unknown gate kind %q", g.Kind)
	}
	if len(g.Targets) != arity.Targets {
		return errf(i, "gate %q requires %d target(s), got %d", g.Kind, arity.Targets, len(g.Targets))
	}
	if len(g.Controls) != arity.Controls {
		return errf(i, "gate %q requires %d control(s), got %d", g.Kind, arity.Controls, len(g.Controls))
	}
	nParams := len(g.Params)
	if len(g.SymbolicParams) > nParams {
		nParams = len(g.SymbolicParams)
	}
	if nParams != arity.Params {
		return errf(i, "gate %q requires %d parameter(s), got %d", g.Kind, arity.Params, nParams)
	}
	return nil
}

// resolveParams replaces symbolic parameters with their configured values.
// A symbolic name with no binding rejects the circuit before execution.
func resolveParams(i int, g *gate.Gate, params map[string]float64) error {
	if len(g.SymbolicParams) == 0 {
		return nil
	}
	resolved := make([]float64, len(g.SymbolicParams))
	for p, name := range g.SymbolicParams {
		if name == "" {
			if p < len(g.Params) {
				resolved[p] = g.Params[p]
			}
			continue
		}
		value, ok := params[name]
		if !ok {
			return errf(i, "unresolved symbolic parameter %q", name)
		}
		resolved[p] = value
	}
	g.Params = resolved
	g.SymbolicParams = nil
	return nil
}

// validateClassicalOrdering requires every classically-conditioned gate to
// sit in a column strictly after the measurement of the bit it reads.
func validateClassicalOrdering(gates []gate.Gate) error {
	measureColumn := make(map[int]int)
	for _, g := range gates {
		if g.Kind != gate.KindMeasure {
			continue
		}
		q := g.Targets[0]
		if col, ok := measureColumn[q]; !ok || g.Column < col {
			measureColumn[q] = g.Column
		}
	}
	for i := range gates {
		g := &gates[i]
		if g.ClassicalControl == nil {
			continue
		}
		col, measured := measureColumn[*g.ClassicalControl]
		if !measured {
			return errf(i, "classical control reads qubit %d which is never measured", *g.ClassicalControl)
		}
		if g.Column <= col {
			return errf(i, "classically-conditioned gate at column %d must come after measurement at column %d", g.Column, col)
		}
	}
	return nil
}
