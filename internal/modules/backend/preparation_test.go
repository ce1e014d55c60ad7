package backend

import (
	"testing"

	"github.com/aristath/mcvqe/internal/modules/aiem"
	"github.com/aristath/mcvqe/internal/modules/chromophore"
	"github.com/aristath/mcvqe/internal/modules/circuit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func sites(n int) []chromophore.Site {
	out := make([]chromophore.Site, n)
	for a := range out {
		fa := float64(a)
		out[a] = chromophore.Site{
			GroundEnergy:     -1.0 - 0.01*fa,
			ExcitedEnergy:    -0.85 + 0.015*fa,
			CenterOfMass:     chromophore.Vec3{5.5 * fa, 0.3 * fa, 0.1},
			GroundDipole:     chromophore.Vec3{0.3, -0.1 * fa, 0.2},
			ExcitedDipole:    chromophore.Vec3{-0.2, 0.5, 0.05 * fa},
			TransitionDipole: chromophore.Vec3{0.2 * fa, 0.9, -0.4},
		}
	}
	return out
}

// singleExcitation returns the basis index holding reference coefficient k:
// the all-ground state for k == 0 and site k-1 excited otherwise.
func singleExcitation(k int) int {
	if k == 0 {
		return 0
	}
	return 1 << (k - 1)
}

func TestStatePreparation_ReproducesReferenceStates(t *testing.T) {
	b := exact(t)
	for _, topo := range []chromophore.Topology{{N: 1}, {N: 2}, {N: 3}, {N: 4, Cyclic: true}} {
		model, err := aiem.Build(sites(topo.N), topo)
		require.NoError(t, err)
		spectrum, err := model.Diagonalize()
		require.NoError(t, err)

		nStates := topo.N + 1
		angles := circuit.AngleMatrix(spectrum.Vectors, nStates)
		for s := 0; s < nStates; s++ {
			prep := circuit.StatePreparation(mat.Col(nil, s, angles))
			state, err := b.Prepare(prep, nil)
			require.NoError(t, err)

			expected := make([]float64, len(state.Amplitudes))
			for k := 0; k < nStates; k++ {
				expected[singleExcitation(k)] = spectrum.Vectors.At(k, s)
			}
			for i, amp := range state.Amplitudes {
				assert.InDelta(t, expected[i], real(amp), 1e-10, "topology %+v state %d basis %d", topo, s, i)
				assert.InDelta(t, 0, imag(amp), 1e-10)
			}
		}
	}
}

func TestReferenceEnergiesAtZeroEntangler(t *testing.T) {
	b := exact(t)
	topo := chromophore.Topology{N: 3, Cyclic: true}
	model, err := aiem.Build(sites(3), topo)
	require.NoError(t, err)
	spectrum, err := model.Diagonalize()
	require.NoError(t, err)

	angles := circuit.AngleMatrix(spectrum.Vectors, topo.N+1)
	entangler := circuit.Entangler(topo.N, topo.Cyclic)
	x := make([]float64, entangler.NumVariables())
	for s := 0; s <= topo.N; s++ {
		kernel := circuit.StatePreparation(mat.Col(nil, s, angles)).Compose(entangler)
		state, err := b.Prepare(kernel, x)
		require.NoError(t, err)
		energy, err := state.Expectation(model.Hamiltonian)
		require.NoError(t, err)
		assert.InDelta(t, spectrum.Energies[s], energy, 1e-10, "state %d", s)
	}
}
