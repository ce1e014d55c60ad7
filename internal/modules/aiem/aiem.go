// Package aiem builds the ab initio exciton model (AIEM) Hamiltonian of a
// chromophore aggregate and the CIS reference matrix in the basis of the
// ground state and the N single excitations.
package aiem

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/mcvqe/internal/modules/chromophore"
	"github.com/aristath/mcvqe/internal/modules/pauli"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDegenerateGeometry is returned when two coupled sites share a center of mass.
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	// ErrNonFinite is returned when a Hamiltonian coefficient is NaN or infinite.
	ErrNonFinite = errors.New("non-finite hamiltonian coefficient")
)

// Coupling returns the point-dipole interaction
//
//	(muA·muB - 3 (muA·n)(muB·n)) / |rAB|^3,  n = rAB / |rAB|
//
// The value is symmetric under swapping the dipoles and negating rAB.
func Coupling(muA, muB, rAB chromophore.Vec3) (float64, error) {
	d := rAB.Norm()
	if d == 0 {
		return 0, ErrDegenerateGeometry
	}
	n := rAB.Scale(1 / d)
	return (muA.Dot(muB) - 3*muA.Dot(n)*muB.Dot(n)) / (d * d * d), nil
}

// Model holds the AIEM coefficients, the Pauli Hamiltonian built from them
// and the CIS reference matrix. A Model is read-only after Build.
type Model struct {
	Topology chromophore.Topology

	// Offset is the scalar energy shift from the symmetric dipoles. The
	// site-average energies are left out since they only shift the spectrum.
	Offset float64
	// Z and X are the one-site coefficients.
	Z, X []float64
	// Directed two-site coefficients, indexed [A][B] for neighbors B of A.
	XX, XZ, ZX, ZZ *mat.Dense

	Hamiltonian *pauli.Sum
	Reference   *mat.SymDense
}

// NumStates returns the dimension of the reference matrix.
func (m *Model) NumStates() int {
	return m.Topology.N + 1
}

// Build computes the AIEM coefficients for sites, which must already be in
// atomic units, coupled according to topo.
func Build(sites []chromophore.Site, topo chromophore.Topology) (*Model, error) {
	n := topo.N
	if n <= 0 {
		return nil, fmt.Errorf("aiem: topology has %d sites", n)
	}
	if len(sites) != n {
		return nil, fmt.Errorf("aiem: topology has %d sites but %d were given", n, len(sites))
	}

	m := &Model{
		Topology: topo,
		Z:        make([]float64, n),
		X:        make([]float64, n),
		XX:       mat.NewDense(n, n, nil),
		XZ:       mat.NewDense(n, n, nil),
		ZX:       mat.NewDense(n, n, nil),
		ZZ:       mat.NewDense(n, n, nil),
	}

	for a, s := range sites {
		m.Z[a] = (s.GroundEnergy - s.ExcitedEnergy) / 2
	}

	for a := 0; a < n; a++ {
		for _, b := range topo.Neighbors(a) {
			if err := m.addPair(sites, a, b); err != nil {
				return nil, err
			}
		}
	}

	m.Hamiltonian = m.hamiltonian()
	if !m.Hamiltonian.IsFinite() {
		return nil, ErrNonFinite
	}
	m.Reference = m.reference()
	return m, nil
}

// addPair accumulates the directed contribution of neighbor b to site a.
func (m *Model) addPair(sites []chromophore.Site, a, b int) error {
	sa, sb := sites[a], sites[b]
	rAB := sa.CenterOfMass.Sub(sb.CenterOfMass)
	rBA := sb.CenterOfMass.Sub(sa.CenterOfMass)

	var err error
	coupling := func(muA, muB, r chromophore.Vec3) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = Coupling(muA, muB, r)
		return v
	}

	m.Offset += 0.5 * coupling(sa.DipoleSum(), sb.DipoleSum(), rAB)

	m.X[a] += 0.5 * coupling(sa.TransitionDipole, sb.DipoleSum(), rAB)
	m.X[a] += 0.5 * coupling(sb.DipoleSum(), sa.TransitionDipole, rBA)

	m.Z[a] += 0.5 * coupling(sa.DipoleSum(), sb.DipoleDiff(), rAB)
	m.Z[a] += 0.5 * coupling(sb.DipoleDiff(), sa.DipoleSum(), rBA)

	m.XX.Set(a, b, coupling(sa.TransitionDipole, sb.TransitionDipole, rAB))
	m.XZ.Set(a, b, coupling(sa.TransitionDipole, sb.DipoleDiff(), rAB))
	m.ZX.Set(a, b, coupling(sa.DipoleDiff(), sb.TransitionDipole, rAB))
	m.ZZ.Set(a, b, coupling(sa.DipoleDiff(), sb.DipoleDiff(), rAB))

	if err != nil {
		return fmt.Errorf("sites %d and %d: %w", a, b, err)
	}
	return nil
}

// hamiltonian assembles the Pauli sum. Every directed pair term carries half
// weight, so the two directions of a pair merge into one canonical term.
func (m *Model) hamiltonian() *pauli.Sum {
	h := pauli.NewSum()
	for a := 0; a < m.Topology.N; a++ {
		for _, b := range m.Topology.Neighbors(a) {
			h.Add(0.5*m.XX.At(a, b), pauli.OnX(a), pauli.OnX(b))
			h.Add(0.5*m.XZ.At(a, b), pauli.OnX(a), pauli.OnZ(b))
			h.Add(0.5*m.ZX.At(a, b), pauli.OnZ(a), pauli.OnX(b))
			h.Add(0.5*m.ZZ.At(a, b), pauli.OnZ(a), pauli.OnZ(b))
		}
		h.Add(m.Z[a], pauli.OnZ(a))
		h.Add(m.X[a], pauli.OnX(a))
	}
	h.Offset += m.Offset
	h.Compact()
	return h
}

// ReferenceEnergy is the expectation value of the Hamiltonian in the
// all-ground product state.
func (m *Model) ReferenceEnergy() float64 {
	return m.Offset + floats.Sum(m.Z) + 0.5*mat.Sum(m.ZZ)
}

// reference builds the CIS matrix. Index 0 is the all-ground state and index
// A+1 the state with site A excited.
func (m *Model) reference() *mat.SymDense {
	n := m.Topology.N
	cis := mat.NewSymDense(n+1, nil)
	eRef := m.ReferenceEnergy()
	cis.SetSym(0, 0, eRef)

	for a := 0; a < n; a++ {
		diag := eRef - 2*m.Z[a]
		off := m.X[a]
		for _, b := range m.Topology.Neighbors(a) {
			diag -= m.ZZ.At(a, b) + m.ZZ.At(b, a)
			off += 0.5 * (m.XZ.At(a, b) + m.ZX.At(b, a))
			cis.SetSym(a+1, b+1, m.XX.At(a, b))
		}
		cis.SetSym(a+1, a+1, diag)
		cis.SetSym(a+1, 0, off)
	}
	return cis
}

// Spectrum is the eigendecomposition of a symmetric matrix: ascending
// energies and the matching orthonormal eigenvectors as columns.
type Spectrum struct {
	Energies []float64
	Vectors  *mat.Dense
}

// Diagonalize returns the eigendecomposition of the reference matrix.
func (m *Model) Diagonalize() (Spectrum, error) {
	return Diagonalize(m.Reference)
}

// Diagonalize factorizes a symmetric matrix. Each eigenvector is
// sign-normalized so that its largest-magnitude component is positive.
func Diagonalize(sym mat.Symmetric) (Spectrum, error) {
	n := sym.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if v := sym.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return Spectrum{}, ErrNonFinite
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return Spectrum{}, errors.New("aiem: symmetric eigendecomposition failed")
	}

	energies := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	for j := 0; j < n; j++ {
		pivot := 0.0
		for i := 0; i < n; i++ {
			if v := vectors.At(i, j); math.Abs(v) > math.Abs(pivot)+1e-12 {
				pivot = v
			}
		}
		if pivot < 0 {
			for i := 0; i < n; i++ {
				vectors.Set(i, j, -vectors.At(i, j))
			}
		}
	}

	return Spectrum{Energies: energies, Vectors: &vectors}, nil
}
