// Package backend executes parameterized circuits and returns expectation
// values of Pauli observables.
package backend

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/aristath/mcvqe/internal/modules/circuit"
	"github.com/aristath/mcvqe/internal/modules/pauli"
)

// Execution is one circuit to run at a concrete parameter vector.
type Execution struct {
	Circuit *circuit.Circuit
	Params  []float64
}

// Backend evaluates observables on circuits. Implementations must be safe for
// concurrent use.
type Backend interface {
	Name() string
	Evaluate(ctx context.Context, obs *pauli.Sum, c *circuit.Circuit, x []float64) (float64, error)
	BatchEvaluate(ctx context.Context, obs *pauli.Sum, execs []Execution) ([]float64, error)
}

// Statevector simulates circuits exactly. With Shots > 0 every Pauli string is
// estimated from that many sampled measurements in its eigenbasis.
type Statevector struct {
	shots int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewStatevector returns a simulator. shots == 0 selects exact expectations.
func NewStatevector(shots int, seed int64) (*Statevector, error) {
	if shots < 0 {
		return nil, fmt.Errorf("shots must be non-negative, got %d", shots)
	}
	return &Statevector{shots: shots, rng: rand.New(rand.NewSource(seed))}, nil
}

// Name implements Backend.
func (b *Statevector) Name() string {
	if b.shots > 0 {
		return fmt.Sprintf("statevector-shots-%d", b.shots)
	}
	return "statevector"
}

// Shots returns the sample count per Pauli string, zero when exact.
func (b *Statevector) Shots() int {
	return b.shots
}

// Prepare runs c at x from |0...0> and returns the final state.
func (b *Statevector) Prepare(c *circuit.Circuit, x []float64) (*State, error) {
	bound, err := c.Bind(x)
	if err != nil {
		return nil, err
	}
	state, err := NewState(c.NumQubits)
	if err != nil {
		return nil, err
	}
	if err := state.Run(bound); err != nil {
		return nil, err
	}
	return state, nil
}

// Evaluate implements Backend.
func (b *Statevector) Evaluate(ctx context.Context, obs *pauli.Sum, c *circuit.Circuit, x []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if obs == nil {
		return 0, errors.New("nil observable")
	}

	state, err := b.Prepare(c, x)
	if err != nil {
		return 0, err
	}
	if b.shots == 0 {
		return state.Expectation(obs)
	}
	return b.sample(state, obs)
}

// BatchEvaluate implements Backend.
func (b *Statevector) BatchEvaluate(ctx context.Context, obs *pauli.Sum, execs []Execution) ([]float64, error) {
	out := make([]float64, len(execs))
	for i, e := range execs {
		v, err := b.Evaluate(ctx, obs, e.Circuit, e.Params)
		if err != nil {
			return nil, fmt.Errorf("execution %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// sample estimates each Pauli string by rotating its sites into the Z basis
// (H for X, Sdg then H for Y) and averaging the measured parity.
func (b *Statevector) sample(state *State, obs *pauli.Sum) (float64, error) {
	if obs.MaxSite() >= state.NumQubits {
		return 0, fmt.Errorf("observable acts on site %d of a %d-qubit register", obs.MaxSite(), state.NumQubits)
	}

	value := obs.Offset
	for _, term := range obs.Terms() {
		rotated := state.Clone()
		var mask int
		for _, op := range term.Ops {
			mask |= 1 << op.Site
			var rotation []circuit.Gate
			switch op.Axis {
			case pauli.X:
				rotation = []circuit.Gate{circuit.H}
			case pauli.Y:
				rotation = []circuit.Gate{circuit.Sdg, circuit.H}
			}
			for _, g := range rotation {
				if err := rotated.Apply(circuit.BoundInstruction{Gate: g, Qubits: []int{op.Site}}); err != nil {
					return 0, err
				}
			}
		}

		cumulative := rotated.Probabilities()
		for i := 1; i < len(cumulative); i++ {
			cumulative[i] += cumulative[i-1]
		}

		draws := b.draw(b.shots)
		total := cumulative[len(cumulative)-1]
		hits := 0
		for _, r := range draws {
			outcome := sort.SearchFloat64s(cumulative, r*total)
			if outcome >= len(cumulative) {
				outcome = len(cumulative) - 1
			}
			if parity(outcome&mask) == 0 {
				hits++
			} else {
				hits--
			}
		}
		value += term.Coeff * float64(hits) / float64(b.shots)
	}
	return value, nil
}

func (b *Statevector) draw(n int) []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float64, n)
	for i := range out {
		out[i] = b.rng.Float64()
	}
	return out
}
