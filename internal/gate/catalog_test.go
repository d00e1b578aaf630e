package gate

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isUnitary checks U * U^dagger == I within tolerance.
func isUnitary(t *testing.T, u Matrix2) {
	t.Helper()
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			var sum complex128
			for k := 0; k < 2; k++ {
				sum += u[r][k] * cmplx.Conj(u[c][k])
			}
			want := complex128(0)
			if r == c {
				want = 1
			}
			assert.InDelta(t, real(want), real(sum), 1e-12)
			assert.InDelta(t, imag(want), imag(sum), 1e-12)
		}
	}
}

// TestMatrix_AllUnitaryKinds verifies every matrix-backed kind is unitary.
func TestMatrix_AllUnitaryKinds(t *testing.T) {
	params := map[Kind][]float64{
		KindRX: {1.2},
		KindRY: {0.7},
		KindRZ: {2.3},
		KindU3: {1.2, 0.5, 0.9},
	}
	for kind := range arities {
		if kind == KindSWAP || kind == KindMeasure {
			continue
		}
		u, err := Matrix(kind, params[kind])
		require.NoError(t, err, "kind %s", kind)
		isUnitary(t, u)
	}
}

// TestMatrix_Hadamard checks the H matrix entries.
func TestMatrix_Hadamard(t *testing.T) {
	u, err := Matrix(KindH, nil)
	require.NoError(t, err)

	inv := 1 / math.Sqrt2
	assert.InDelta(t, inv, real(u[0][0]), 1e-12)
	assert.InDelta(t, inv, real(u[0][1]), 1e-12)
	assert.InDelta(t, inv, real(u[1][0]), 1e-12)
	assert.InDelta(t, -inv, real(u[1][1]), 1e-12)
}

// TestMatrix_ControlledKindsUseBaseMatrix verifies CX/CCX resolve to X and
// CZ resolves to Z.
func TestMatrix_ControlledKindsUseBaseMatrix(t *testing.T) {
	cx, err := Matrix(KindCX, nil)
	require.NoError(t, err)
	x, err := Matrix(KindX, nil)
	require.NoError(t, err)
	assert.Equal(t, x, cx)

	ccx, err := Matrix(KindCCX, nil)
	require.NoError(t, err)
	assert.Equal(t, x, ccx)

	cz, err := Matrix(KindCZ, nil)
	require.NoError(t, err)
	z, err := Matrix(KindZ, nil)
	require.NoError(t, err)
	assert.Equal(t, z, cz)
}

// TestMatrix_U3PhaseGate verifies u3(0, 0, lambda) is the phase gate
// diag(1, e^{i lambda}).
func TestMatrix_U3PhaseGate(t *testing.T) {
	lambda := math.Pi / 4
	u, err := Matrix(KindU3, []float64{0, 0, lambda})
	require.NoError(t, err)

	assert.InDelta(t, 1, real(u[0][0]), 1e-12)
	assert.InDelta(t, 0, cmplx.Abs(u[0][1]), 1e-12)
	assert.InDelta(t, 0, cmplx.Abs(u[1][0]), 1e-12)
	assert.InDelta(t, math.Cos(lambda), real(u[1][1]), 1e-12)
	assert.InDelta(t, math.Sin(lambda), imag(u[1][1]), 1e-12)
}

// TestMatrix_MissingParams rejects rotation kinds without parameters.
func TestMatrix_MissingParams(t *testing.T) {
	for _, kind := range []Kind{KindRX, KindRY, KindRZ, KindU3} {
		_, err := Matrix(kind, nil)
		assert.Error(t, err, "kind %s", kind)
	}
}

// TestMatrix_NoMatrixKinds verifies SWAP and measure have no 2x2 matrix.
func TestMatrix_NoMatrixKinds(t *testing.T) {
	_, err := Matrix(KindSWAP, nil)
	assert.Error(t, err)
	_, err = Matrix(KindMeasure, nil)
	assert.Error(t, err)
}

// TestArityOf covers shape lookups for known and unknown kinds.
func TestArityOf(t *testing.T) {
	a, ok := ArityOf(KindCCX)
	require.True(t, ok)
	assert.Equal(t, 1, a.Targets)
	assert.Equal(t, 2, a.Controls)

	a, ok = ArityOf(KindSWAP)
	require.True(t, ok)
	assert.Equal(t, 2, a.Targets)

	_, ok = ArityOf(Kind("bogus"))
	assert.False(t, ok)
	assert.False(t, Known(Kind("bogus")))
}

// TestKind_IsUnitary verifies measurement is the only non-unitary kind.
func TestKind_IsUnitary(t *testing.T) {
	assert.False(t, KindMeasure.IsUnitary())
	assert.True(t, KindH.IsUnitary())
	assert.True(t, KindCCX.IsUnitary())
}
