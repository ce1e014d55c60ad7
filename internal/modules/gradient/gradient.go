// Package gradient provides strategies that turn a circuit and a parameter
// vector into backend executions whose results combine into an energy
// gradient.
package gradient

import (
	"fmt"
	"math"

	"github.com/aristath/mcvqe/internal/modules/backend"
	"github.com/aristath/mcvqe/internal/modules/circuit"
)

// Strategy names accepted by New.
const (
	NameParameterShift = "parameter-shift"
	NameCentral        = "central"
	NameForward        = "forward"
)

// DefaultStep is the finite-difference step used when none is set.
const DefaultStep = 1e-4

// Strategy builds gradient executions and combines their results.
type Strategy interface {
	Name() string
	// Circuits returns the executions needed for the gradient at x.
	Circuits(c *circuit.Circuit, x []float64) []backend.Execution
	// Compute combines the expectation values of those executions, in order.
	Compute(x []float64, results []float64) ([]float64, error)
}

// New returns the strategy registered under name.
func New(name string) (Strategy, error) {
	switch name {
	case NameParameterShift:
		return ParameterShift{}, nil
	case NameCentral:
		return CentralDifference{Step: DefaultStep}, nil
	case NameForward:
		return ForwardDifference{Step: DefaultStep}, nil
	default:
		return nil, fmt.Errorf("unknown gradient strategy %q", name)
	}
}

// ParameterShift evaluates (E(x + pi/2 e_i) - E(x - pi/2 e_i)) / 2, which is
// exact when every variable drives a single rotation gate.
type ParameterShift struct{}

// Name implements Strategy.
func (ParameterShift) Name() string { return NameParameterShift }

// Circuits implements Strategy.
func (ParameterShift) Circuits(c *circuit.Circuit, x []float64) []backend.Execution {
	return shifted(c, x, math.Pi/2)
}

// Compute implements Strategy.
func (ParameterShift) Compute(x []float64, results []float64) ([]float64, error) {
	if err := expect(len(results), 2*len(x)); err != nil {
		return nil, err
	}
	grad := make([]float64, len(x))
	for i := range grad {
		grad[i] = (results[2*i] - results[2*i+1]) / 2
	}
	return grad, nil
}

// CentralDifference evaluates (E(x + h e_i) - E(x - h e_i)) / 2h.
type CentralDifference struct {
	Step float64
}

// Name implements Strategy.
func (CentralDifference) Name() string { return NameCentral }

// Circuits implements Strategy.
func (d CentralDifference) Circuits(c *circuit.Circuit, x []float64) []backend.Execution {
	return shifted(c, x, step(d.Step))
}

// Compute implements Strategy.
func (d CentralDifference) Compute(x []float64, results []float64) ([]float64, error) {
	if err := expect(len(results), 2*len(x)); err != nil {
		return nil, err
	}
	h := step(d.Step)
	grad := make([]float64, len(x))
	for i := range grad {
		grad[i] = (results[2*i] - results[2*i+1]) / (2 * h)
	}
	return grad, nil
}

// ForwardDifference evaluates (E(x + h e_i) - E(x)) / h. The first execution
// is the unshifted point.
type ForwardDifference struct {
	Step float64
}

// Name implements Strategy.
func (ForwardDifference) Name() string { return NameForward }

// Circuits implements Strategy.
func (d ForwardDifference) Circuits(c *circuit.Circuit, x []float64) []backend.Execution {
	h := step(d.Step)
	execs := make([]backend.Execution, 0, len(x)+1)
	execs = append(execs, backend.Execution{Circuit: c, Params: append([]float64(nil), x...)})
	for i := range x {
		p := append([]float64(nil), x...)
		p[i] += h
		execs = append(execs, backend.Execution{Circuit: c, Params: p})
	}
	return execs
}

// Compute implements Strategy.
func (d ForwardDifference) Compute(x []float64, results []float64) ([]float64, error) {
	if err := expect(len(results), len(x)+1); err != nil {
		return nil, err
	}
	h := step(d.Step)
	grad := make([]float64, len(x))
	for i := range grad {
		grad[i] = (results[i+1] - results[0]) / h
	}
	return grad, nil
}

// shifted returns the executions at x + delta e_i and x - delta e_i for every i.
func shifted(c *circuit.Circuit, x []float64, delta float64) []backend.Execution {
	execs := make([]backend.Execution, 0, 2*len(x))
	for i := range x {
		plus := append([]float64(nil), x...)
		plus[i] += delta
		minus := append([]float64(nil), x...)
		minus[i] -= delta
		execs = append(execs,
			backend.Execution{Circuit: c, Params: plus},
			backend.Execution{Circuit: c, Params: minus},
		)
	}
	return execs
}

func step(h float64) float64 {
	if h <= 0 {
		return DefaultStep
	}
	return h
}

func expect(got, want int) error {
	if got != want {
		return fmt.Errorf("gradient expects %d results, got %d", want, got)
	}
	return nil
}
