package mcvqe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/aristath/mcvqe/internal/events"
	"github.com/aristath/mcvqe/internal/modules/backend"
	"github.com/aristath/mcvqe/internal/modules/circuit"
	"github.com/aristath/mcvqe/internal/modules/gradient"
	"github.com/aristath/mcvqe/internal/modules/optimizer"
	"github.com/aristath/mcvqe/internal/modules/pauli"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"
)

// CircuitStats describes the last evaluated state circuit.
type CircuitStats struct {
	Depth           int `json:"depth" msgpack:"depth"`
	NumInstructions int `json:"num_instructions" msgpack:"num_instructions"`
}

// Objective is the averaged-energy objective. It owns the best-so-far
// average together with the per-state energies that produced it; both are
// updated as one unit under mu.
type Objective struct {
	kernels     []*circuit.Circuit
	hamiltonian *pauli.Sum
	backend     backend.Backend
	gradient    gradient.Strategy
	workers     int
	runID       string
	emitter     Emitter
	log         zerolog.Logger

	mu         sync.Mutex
	best       float64
	diagonal   []float64
	recorded   bool
	stats      CircuitStats
	iterations int
	trace      []float64
}

func newObjective(kernels []*circuit.Circuit, h *pauli.Sum, b backend.Backend, g gradient.Strategy, workers int, log zerolog.Logger) *Objective {
	return &Objective{
		kernels:     kernels,
		hamiltonian: h,
		backend:     b,
		gradient:    g,
		workers:     workers,
		log:         log,
		best:        math.Inf(1),
	}
}

// Evaluate returns the mean energy over all reference states at x. When grad
// is non-nil it receives the mean of the per-state gradients. A strictly
// lower mean than any previous call replaces the recorded diagonal.
func (o *Objective) Evaluate(ctx context.Context, x, grad []float64) (float64, error) {
	if grad != nil && o.gradient == nil {
		return 0, errors.New("gradient requested but no gradient strategy configured")
	}

	start := time.Now()
	energies, stateGrads, err := o.evaluateStates(ctx, x, grad != nil)
	if err != nil {
		return 0, err
	}

	n := float64(len(energies))
	average := floats.Sum(energies) / n
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
		for _, g := range stateGrads {
			floats.AddScaled(grad, 1/n, g)
		}
	}

	last := o.kernels[len(o.kernels)-1]

	o.mu.Lock()
	o.iterations++
	iteration := o.iterations
	o.trace = append(o.trace, average)
	o.stats = CircuitStats{Depth: last.Depth(), NumInstructions: last.NInstructions()}
	improved := average < o.best
	if improved {
		o.best = average
		o.diagonal = slices.Clone(energies)
		o.recorded = true
	}
	best := o.best
	o.mu.Unlock()

	o.log.Debug().
		Int("iteration", iteration).
		Floats64("energies", energies).
		Float64("average_energy", average).
		Bool("improved", improved).
		Dur("duration", time.Since(start)).
		Msg("Objective evaluated")
	o.log.Trace().Floats64("x", x).Float64("average_energy", average).Msg("Objective point")

	if o.emitter != nil {
		o.emitter.EmitTyped(events.IterationCompleted, "mcvqe", &events.IterationCompletedData{
			RunID:         o.runID,
			Iteration:     iteration,
			AverageEnergy: average,
			BestAverage:   best,
			Energies:      energies,
			Improved:      improved,
		})
	}
	return average, nil
}

// Func binds Evaluate to ctx in the form the optimizers call.
func (o *Objective) Func(ctx context.Context) optimizer.Objective {
	return func(x, grad []float64) (float64, error) {
		return o.Evaluate(ctx, x, grad)
	}
}

// evaluateStates runs every reference-state circuit at x on a bounded pool.
// Results land in index-addressed slots so the order never depends on
// scheduling.
func (o *Objective) evaluateStates(ctx context.Context, x []float64, withGrad bool) ([]float64, [][]float64, error) {
	energies := make([]float64, len(o.kernels))
	var grads [][]float64
	if withGrad {
		grads = make([][]float64, len(o.kernels))
	}

	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(o.workers)
	for s, kernel := range o.kernels {
		p.Go(func(ctx context.Context) error {
			e, err := o.backend.Evaluate(ctx, o.hamiltonian, kernel, x)
			if err != nil {
				return backendError(err, "state %d", s)
			}
			energies[s] = e

			if !withGrad {
				return nil
			}
			execs := o.gradient.Circuits(kernel, x)
			results, err := o.backend.BatchEvaluate(ctx, o.hamiltonian, execs)
			if err != nil {
				return backendError(err, "state %d gradient", s)
			}
			g, err := o.gradient.Compute(x, results)
			if err != nil {
				return fmt.Errorf("state %d gradient: %w", s, err)
			}
			grads[s] = g
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, nil, err
	}
	return energies, grads, nil
}

// Best returns the lowest average seen and a copy of the per-state energies
// of that call. ok is false before the first evaluation.
func (o *Objective) Best() (average float64, diagonal []float64, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.best, slices.Clone(o.diagonal), o.recorded
}

// Metadata returns the circuit statistics of the last evaluated state.
func (o *Objective) Metadata() CircuitStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// Trace returns the average energy of every call in order.
func (o *Objective) Trace() []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.trace)
}

// Iterations returns the number of completed calls.
func (o *Objective) Iterations() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.iterations
}

// backendError tags err as a backend failure. Cancellation and deadline
// errors pass through unchanged so stopped runs are not reported as backend
// faults.
func backendError(err error, format string, args ...interface{}) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrBackend, fmt.Sprintf(format, args...), err)
}
