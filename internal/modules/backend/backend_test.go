package backend

import (
	"context"
	"math"
	"testing"

	"github.com/aristath/mcvqe/internal/modules/circuit"
	"github.com/aristath/mcvqe/internal/modules/pauli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exact(t *testing.T) *Statevector {
	t.Helper()
	b, err := NewStatevector(0, 1)
	require.NoError(t, err)
	return b
}

func TestNewState_Bounds(t *testing.T) {
	_, err := NewState(MaxQubits + 1)
	assert.Error(t, err)

	s, err := NewState(3)
	require.NoError(t, err)
	assert.Len(t, s.Amplitudes, 8)
	assert.Equal(t, complex(1, 0), s.Amplitudes[0])
}

func TestState_Gates(t *testing.T) {
	testCases := []struct {
		name     string
		build    func(c *circuit.Circuit)
		expected []float64
	}{
		{"ry pi flips", func(c *circuit.Circuit) { c.RY(0, circuit.Const(math.Pi)) }, []float64{0, 1, 0, 0}},
		{"hadamard", func(c *circuit.Circuit) { c.H(1) }, []float64{0.5, 0, 0.5, 0}},
		{"bell", func(c *circuit.Circuit) { c.H(0).CNOT(0, 1) }, []float64{0.5, 0, 0, 0.5}},
		{"cnot idle control", func(c *circuit.Circuit) { c.CNOT(0, 1) }, []float64{1, 0, 0, 0}},
		{"rx pi flips", func(c *circuit.Circuit) { c.Append(circuit.RX, []int{1}, circuit.Const(math.Pi)) }, []float64{0, 0, 1, 0}},
		{"rz keeps populations", func(c *circuit.Circuit) { c.H(0).Append(circuit.RZ, []int{0}, circuit.Const(0.7)) }, []float64{0.5, 0.5, 0, 0}},
		{"x", func(c *circuit.Circuit) { c.Append(circuit.X, []int{0}) }, []float64{0, 1, 0, 0}},
	}

	b := exact(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := circuit.New(2)
			tc.build(c)
			state, err := b.Prepare(c, nil)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tc.expected, state.Probabilities(), 1e-12)
		})
	}
}

func TestState_Expectation(t *testing.T) {
	single := func(axis pauli.Axis) *pauli.Sum {
		s := pauli.NewSum()
		s.Add(1, pauli.Op{Site: 0, Axis: axis})
		return s
	}

	testCases := []struct {
		name     string
		build    func(c *circuit.Circuit)
		axis     pauli.Axis
		expected float64
	}{
		{"Z on |0>", func(c *circuit.Circuit) {}, pauli.Z, 1},
		{"Z on |1>", func(c *circuit.Circuit) { c.Append(circuit.X, []int{0}) }, pauli.Z, -1},
		{"X on |0>", func(c *circuit.Circuit) {}, pauli.X, 0},
		{"X on |+>", func(c *circuit.Circuit) { c.H(0) }, pauli.X, 1},
		{"X on |->", func(c *circuit.Circuit) { c.Append(circuit.X, []int{0}).H(0) }, pauli.X, -1},
		{"Y on |+i>", func(c *circuit.Circuit) { c.H(0).Append(circuit.S, []int{0}) }, pauli.Y, 1},
		{"Y on |-i>", func(c *circuit.Circuit) { c.H(0).Append(circuit.Sdg, []int{0}) }, pauli.Y, -1},
		{"Z after ry", func(c *circuit.Circuit) { c.RY(0, circuit.Const(0.6)) }, pauli.Z, math.Cos(0.6)},
		{"X after ry", func(c *circuit.Circuit) { c.RY(0, circuit.Const(0.6)) }, pauli.X, math.Sin(0.6)},
	}

	b := exact(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := circuit.New(1)
			tc.build(c)
			got, err := b.Evaluate(context.Background(), single(tc.axis), c, nil)
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, got, 1e-12)
		})
	}
}

func TestState_TwoSiteExpectation(t *testing.T) {
	obs := pauli.NewSum()
	obs.Add(0.5, pauli.OnZ(0), pauli.OnZ(1))
	obs.Add(0.25, pauli.OnX(0), pauli.OnX(1))
	obs.Add(-0.3, pauli.OnY(0), pauli.OnY(1))
	obs.Offset = 1

	c := circuit.New(2)
	c.H(0).CNOT(0, 1)

	// Bell state (|00> + |11>)/sqrt(2): <ZZ> = 1, <XX> = 1, <YY> = -1.
	got, err := exact(t).Evaluate(context.Background(), obs, c, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1+0.5+0.25+0.3, got, 1e-12)
}

func TestEvaluate_Errors(t *testing.T) {
	b := exact(t)
	obs := pauli.NewSum()
	obs.Add(1, pauli.OnZ(3))

	_, err := b.Evaluate(context.Background(), obs, circuit.New(2), nil)
	assert.Error(t, err, "observable wider than the register")

	_, err = b.Evaluate(context.Background(), pauli.NewSum(), circuit.Entangler(2, false), []float64{1})
	assert.Error(t, err, "wrong parameter count")

	_, err = b.Evaluate(context.Background(), nil, circuit.New(1), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Evaluate(ctx, pauli.NewSum(), circuit.New(1), nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewStatevector(-1, 0)
	assert.Error(t, err)
}

func TestBatchEvaluate(t *testing.T) {
	obs := pauli.NewSum()
	obs.Add(1, pauli.OnZ(0))

	c := circuit.New(1)
	c.RY(0, circuit.Var(c.AddVariable("t")))

	got, err := exact(t).BatchEvaluate(context.Background(), obs, []Execution{
		{Circuit: c, Params: []float64{0}},
		{Circuit: c, Params: []float64{math.Pi}},
		{Circuit: c, Params: []float64{math.Pi / 2}},
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, -1, 0}, got, 1e-12)
}

func TestStatevector_ShotsApproximateExact(t *testing.T) {
	obs := pauli.NewSum()
	obs.Add(0.7, pauli.OnZ(0))
	obs.Add(-0.4, pauli.OnX(0), pauli.OnX(1))
	obs.Add(0.3, pauli.OnY(1))
	obs.Offset = -0.2

	c := circuit.New(2)
	c.RY(0, circuit.Const(0.9)).H(1).CNOT(0, 1).Append(circuit.RX, []int{1}, circuit.Const(0.4))

	want, err := exact(t).Evaluate(context.Background(), obs, c, nil)
	require.NoError(t, err)

	sampler, err := NewStatevector(20000, 42)
	require.NoError(t, err)
	assert.Equal(t, "statevector-shots-20000", sampler.Name())

	got, err := sampler.Evaluate(context.Background(), obs, c, nil)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 0.05)
}

func TestEntangler_IdentityAtZero(t *testing.T) {
	b := exact(t)
	for _, cyclic := range []bool{false, true} {
		prep := circuit.New(3)
		prep.RY(0, circuit.Const(0.4)).RY(1, circuit.Const(1.1)).CNOT(0, 2)
		before, err := b.Prepare(prep, nil)
		require.NoError(t, err)

		kernel := prep.Compose(circuit.Entangler(3, cyclic))
		after, err := b.Prepare(kernel, make([]float64, kernel.NumVariables()))
		require.NoError(t, err)

		for i := range before.Amplitudes {
			assert.InDelta(t, real(before.Amplitudes[i]), real(after.Amplitudes[i]), 1e-12)
			assert.InDelta(t, imag(before.Amplitudes[i]), imag(after.Amplitudes[i]), 1e-12)
		}
	}
}
