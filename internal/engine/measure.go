package engine

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
)

// Measure collapses the target qubit per the Born rule and records the
// outcome in Classical[target]. The draw comes from rng, so a fixed seed
// yields a fixed outcome. Collapse is destructive: subsequent gates operate
// on the collapsed state. Measuring an already-collapsed qubit returns the
// recorded value again without disturbing the state.
func (s *StateVector) Measure(target int, rng *rand.Rand) int {
	s.checkQubit(target)
	bit := 1 << target

	p0 := 0.0
	for i, a := range s.Amps {
		if i&bit == 0 {
			p0 += real(a)*real(a) + imag(a)*imag(a)
		}
	}

	outcome := 1
	if rng.Float64() < p0 {
		outcome = 0
	}

	pOutcome := p0
	if outcome == 1 {
		pOutcome = 1 - p0
	}
	// Collapsing onto a zero-probability branch cannot happen with a
	// correct draw; guard the rescale anyway.
	scale := 0.0
	if pOutcome > 0 {
		scale = 1 / math.Sqrt(pOutcome)
	}

	for i := range s.Amps {
		hasBit := i&bit != 0
		if (outcome == 1) == hasBit {
			s.Amps[i] *= complex(scale, 0)
		} else {
			s.Amps[i] = 0
		}
	}

	s.Classical[target] = int8(outcome)
	return outcome
}

// Probabilities returns |amp_k|^2 for every basis state.
func (s *StateVector) Probabilities() []float64 {
	probs := make([]float64, len(s.Amps))
	for i, a := range s.Amps {
		probs[i] = real(a)*real(a) + imag(a)*imag(a)
	}
	return probs
}

// Sample draws shots independent measurements from the final probability
// distribution via inverse-CDF sampling and returns aggregate counts keyed
// by basis bitstring (qubit 0 rightmost). The state is not collapsed.
func (s *StateVector) Sample(shots int, rng *rand.Rand) map[string]uint64 {
	counts := make(map[string]uint64)
	if shots <= 0 {
		return counts
	}

	cdf := make([]float64, len(s.Amps))
	running := 0.0
	for i, a := range s.Amps {
		running += real(a)*real(a) + imag(a)*imag(a)
		cdf[i] = running
	}

	for shot := 0; shot < shots; shot++ {
		r := rng.Float64() * running
		k := sort.SearchFloat64s(cdf, r)
		if k == len(cdf) {
			k = len(cdf) - 1
		}
		counts[s.bitstring(k)]++
	}
	return counts
}

// bitstring renders basis index k as an n-character binary string with
// qubit 0 as the rightmost character.
func (s *StateVector) bitstring(k int) string {
	raw := strconv.FormatInt(int64(k), 2)
	if pad := s.QubitCount - len(raw); pad > 0 {
		buf := make([]byte, s.QubitCount)
		for i := 0; i < pad; i++ {
			buf[i] = '0'
		}
		copy(buf[pad:], raw)
		return string(buf)
	}
	return raw
}

// Fidelity returns |<target|psi>|^2 against an amplitude vector of equal
// dimension. Used to validate known circuits against analytic results.
func (s *StateVector) Fidelity(target []complex128) float64 {
	if len(target) != len(s.Amps) {
		panic("engine: fidelity target dimension mismatch")
	}
	var inner complex128
	for i, a := range s.Amps {
		t := target[i]
		inner += complex(real(t), -imag(t)) * a
	}
	return real(inner)*real(inner) + imag(inner)*imag(inner)
}
