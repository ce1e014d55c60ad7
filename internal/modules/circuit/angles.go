package circuit

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// EncodeAngles converts the N+1 coefficients of a reference state (ground
// first, then one per site excitation) into the N state-preparation angles
//
//	angle[k] = acos(c[k] / ||c[k:]||)
//
// The last angle is negated when c[N] is negative, since acos alone cannot
// carry that sign. A vanishing tail norm yields a zero angle.
func EncodeAngles(coeffs []float64) []float64 {
	n := len(coeffs) - 1
	if n < 1 {
		return nil
	}

	angles := make([]float64, n)
	for k := 0; k < n; k++ {
		norm := floats.Norm(coeffs[k:], 2)
		if norm == 0 {
			continue
		}
		ratio := math.Max(-1, math.Min(1, coeffs[k]/norm))
		angles[k] = math.Acos(ratio)
	}
	if coeffs[n] < 0 {
		angles[n-1] = -angles[n-1]
	}
	return angles
}

// AngleMatrix encodes the first nStates columns of vectors, an (N+1)-row
// eigenvector matrix, into an N x nStates matrix of angles.
func AngleMatrix(vectors mat.Matrix, nStates int) *mat.Dense {
	rows, _ := vectors.Dims()
	out := mat.NewDense(rows-1, nStates, nil)
	for s := 0; s < nStates; s++ {
		out.SetCol(s, EncodeAngles(mat.Col(nil, s, vectors)))
	}
	return out
}

// Superposition returns (a + sign*b) / sqrt(2), the angle vector used for the
// interference states. The result is not renormalized.
func Superposition(a, b []float64, sign float64) []float64 {
	out := make([]float64, len(a))
	floats.AddScaledTo(out, a, sign, b)
	floats.Scale(1/math.Sqrt2, out)
	return out
}
