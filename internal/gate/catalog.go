package gate

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Matrix2 is a 2x2 complex unitary in row-major order.
type Matrix2 [2][2]complex128

var (
	invSqrt2 = complex(1/math.Sqrt2, 0)

	matH = Matrix2{
		{invSqrt2, invSqrt2},
		{invSqrt2, -invSqrt2},
	}
	matX = Matrix2{
		{0, 1},
		{1, 0},
	}
	matY = Matrix2{
		{0, -1i},
		{1i, 0},
	}
	matZ = Matrix2{
		{1, 0},
		{0, -1},
	}
	matS = Matrix2{
		{1, 0},
		{0, 1i},
	}
	matSDG = Matrix2{
		{1, 0},
		{0, -1i},
	}
	matT = Matrix2{
		{1, 0},
		{0, cmplx.Exp(complex(0, math.Pi/4))},
	}
	matTDG = Matrix2{
		{1, 0},
		{0, cmplx.Exp(complex(0, -math.Pi/4))},
	}
)

// Matrix returns the 2x2 unitary for a gate kind with resolved parameters.
// Controlled kinds return the matrix of their base kind; the engine applies
// it only where the control bits are satisfied. SWAP and measurement have no
// matrix and return an error.
func Matrix(kind Kind, params []float64) (Matrix2, error) {
	switch kind.Base() {
	case KindH:
		return matH, nil
	case KindX:
		return matX, nil
	case KindY:
		return matY, nil
	case KindZ:
		return matZ, nil
	case KindS:
		return matS, nil
	case KindSDG:
		return matSDG, nil
	case KindT:
		return matT, nil
	case KindTDG:
		return matTDG, nil
	case KindRX:
		if len(params) < 1 {
			return Matrix2{}, fmt.Errorf("rx requires 1 parameter, got %d", len(params))
		}
		return rx(params[0]), nil
	case KindRY:
		if len(params) < 1 {
			return Matrix2{}, fmt.Errorf("ry requires 1 parameter, got %d", len(params))
		}
		return ry(params[0]), nil
	case KindRZ:
		if len(params) < 1 {
			return Matrix2{}, fmt.Errorf("rz requires 1 parameter, got %d", len(params))
		}
		return rz(params[0]), nil
	case KindU3:
		if len(params) < 3 {
			return Matrix2{}, fmt.Errorf("u3 requires 3 parameters, got %d", len(params))
		}
		return u3(params[0], params[1], params[2]), nil
	default:
		return Matrix2{}, fmt.Errorf("gate kind %q has no single-qubit matrix", kind)
	}
}

// Rx(theta) = [[cos(t/2), -i sin(t/2)], [-i sin(t/2), cos(t/2)]]
func rx(theta float64) Matrix2 {
	c := complex(math.Cos(theta/2), 0)
	js := complex(0, -math.Sin(theta/2))
	return Matrix2{
		{c, js},
		{js, c},
	}
}

// Ry(theta) = [[cos(t/2), -sin(t/2)], [sin(t/2), cos(t/2)]]
func ry(theta float64) Matrix2 {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return Matrix2{
		{c, -s},
		{s, c},
	}
}

// Rz(theta) = [[e^{-it/2}, 0], [0, e^{it/2}]]
func rz(theta float64) Matrix2 {
	return Matrix2{
		{cmplx.Exp(complex(0, -theta/2)), 0},
		{0, cmplx.Exp(complex(0, theta/2))},
	}
}

// U3(theta, phi, lambda) is the generic single-qubit unitary.
func u3(theta, phi, lambda float64) Matrix2 {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return Matrix2{
		{c, -cmplx.Exp(complex(0, lambda)) * s},
		{cmplx.Exp(complex(0, phi)) * s, cmplx.Exp(complex(0, phi+lambda)) * c},
	}
}
