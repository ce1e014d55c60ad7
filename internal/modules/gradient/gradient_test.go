package gradient

import (
	"context"
	"testing"

	"github.com/aristath/mcvqe/internal/modules/backend"
	"github.com/aristath/mcvqe/internal/modules/circuit"
	"github.com/aristath/mcvqe/internal/modules/pauli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, name := range []string{NameParameterShift, NameCentral, NameForward} {
		s, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}

	_, err := New("adjoint")
	assert.Error(t, err)
}

func observable() *pauli.Sum {
	h := pauli.NewSum()
	h.Add(0.8, pauli.OnZ(0))
	h.Add(-0.5, pauli.OnZ(1))
	h.Add(0.3, pauli.OnX(0), pauli.OnX(1))
	h.Add(0.2, pauli.OnZ(0), pauli.OnX(1))
	h.Add(0.1, pauli.OnX(1))
	return h
}

func TestStrategies_AgreeOnEntanglerGradient(t *testing.T) {
	b, err := backend.NewStatevector(0, 1)
	require.NoError(t, err)

	prep := circuit.StatePreparation([]float64{0.7, -0.4})
	kernel := prep.Compose(circuit.Entangler(2, false))
	x := make([]float64, kernel.NumVariables())
	for i := range x {
		x[i] = 0.1*float64(i) - 0.25
	}

	gradients := make(map[string][]float64)
	for _, s := range []Strategy{ParameterShift{}, CentralDifference{Step: 1e-5}, ForwardDifference{Step: 1e-7}} {
		execs := s.Circuits(kernel, x)
		results, err := b.BatchEvaluate(context.Background(), observable(), execs)
		require.NoError(t, err)
		grad, err := s.Compute(x, results)
		require.NoError(t, err)
		require.Len(t, grad, len(x))
		gradients[s.Name()] = grad
	}

	assert.InDeltaSlice(t, gradients[NameCentral], gradients[NameParameterShift], 1e-6)
	assert.InDeltaSlice(t, gradients[NameCentral], gradients[NameForward], 1e-5)
}

func TestCircuits_DoNotAliasInput(t *testing.T) {
	x := []float64{0.1, 0.2}
	c := circuit.Entangler(1, false)
	c.Variables = append(c.Variables, "extra")

	execs := ParameterShift{}.Circuits(c, x)
	require.Len(t, execs, 4)
	assert.Equal(t, []float64{0.1, 0.2}, x)
	assert.NotEqual(t, execs[0].Params, execs[1].Params)

	forward := ForwardDifference{}.Circuits(c, x)
	require.Len(t, forward, 3)
	assert.Equal(t, x, forward[0].Params)
	assert.InDelta(t, 0.2+DefaultStep, forward[2].Params[1], 1e-15)
}

func TestCompute_WrongResultCount(t *testing.T) {
	x := []float64{0, 0}
	_, err := ParameterShift{}.Compute(x, []float64{1, 2, 3})
	assert.Error(t, err)
	_, err = CentralDifference{}.Compute(x, []float64{1})
	assert.Error(t, err)
	_, err = ForwardDifference{}.Compute(x, []float64{1, 2})
	assert.Error(t, err)
}
