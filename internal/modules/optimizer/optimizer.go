// Package optimizer adapts gonum's optimize package, plus a small grid search,
// to the objective contract used by the MC-VQE solver.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"gonum.org/v1/gonum/optimize"
)

// Method names accepted by New.
const (
	MethodNelderMead      = "nelder-mead"
	MethodBFGS            = "bfgs"
	MethodLBFGS           = "lbfgs"
	MethodGradientDescent = "gradient-descent"
	MethodGrid            = "grid"
)

// Objective returns the value at x. When grad is non-nil it has len(x) and
// must be filled with the gradient.
type Objective func(x, grad []float64) (float64, error)

// Result is the outcome of one optimization.
type Result struct {
	Value       float64   `json:"value" msgpack:"value"`
	X           []float64 `json:"x" msgpack:"x"`
	Evaluations int       `json:"evaluations" msgpack:"evaluations"`
	Iterations  int       `json:"iterations" msgpack:"iterations"`
	Status      string    `json:"status" msgpack:"status"`
}

// Optimizer minimizes an Objective over R^dim.
type Optimizer interface {
	Name() string
	NeedsGradient() bool
	Optimize(ctx context.Context, f Objective, dim int) (Result, error)
}

// New returns the optimizer registered under name. maxIter <= 0 leaves the
// method's own limits in place.
func New(name string, maxIter int) (Optimizer, error) {
	switch name {
	case MethodNelderMead, MethodBFGS, MethodLBFGS, MethodGradientDescent:
		return &Gonum{Method: name, MaxIterations: maxIter}, nil
	case MethodGrid:
		return &Grid{MaxPoints: maxIter}, nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}

// Gonum runs optimize.Minimize with the selected method.
type Gonum struct {
	Method        string
	MaxIterations int
	// Initial is the starting point; zeros when its length does not match.
	Initial []float64
}

// Name implements Optimizer.
func (g *Gonum) Name() string { return g.Method }

// NeedsGradient reports whether the method uses derivatives.
func (g *Gonum) NeedsGradient() bool {
	return g.Method != MethodNelderMead
}

func (g *Gonum) method() (optimize.Method, error) {
	switch g.Method {
	case MethodNelderMead:
		return &optimize.NelderMead{}, nil
	case MethodBFGS:
		return &optimize.BFGS{}, nil
	case MethodLBFGS:
		return &optimize.LBFGS{}, nil
	case MethodGradientDescent:
		return &optimize.GradientDescent{}, nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", g.Method)
	}
}

// Optimize implements Optimizer. The first objective error or context
// cancellation stops the run and is returned. Any other termination status,
// including iteration limits, is reported in Result.Status.
func (g *Gonum) Optimize(ctx context.Context, f Objective, dim int) (Result, error) {
	method, err := g.method()
	if err != nil {
		return Result{}, err
	}
	if dim <= 0 {
		return Result{}, fmt.Errorf("dimension must be positive, got %d", dim)
	}

	initial := make([]float64, dim)
	if len(g.Initial) == dim {
		copy(initial, g.Initial)
	}

	e := &evaluator{f: f, withGrad: g.NeedsGradient()}
	problem := optimize.Problem{
		Func: e.value,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			if err := e.failure(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	if e.withGrad {
		problem.Grad = e.gradient
	}

	settings := &optimize.Settings{MajorIterations: g.MaxIterations}
	result, err := optimize.Minimize(problem, initial, settings, method)
	if ferr := e.failure(); ferr != nil {
		return Result{}, ferr
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, fmt.Errorf("%s optimization failed: %w", g.Method, err)
	}

	return Result{
		Value:       result.F,
		X:           slices.Clone(result.X),
		Evaluations: e.calls(),
		Iterations:  result.Stats.MajorIterations,
		Status:      result.Status.String(),
	}, nil
}

// evaluator shares one objective call between gonum's separate Func and Grad
// callbacks at the same point and holds the first error.
type evaluator struct {
	f        Objective
	withGrad bool

	mu    sync.Mutex
	err   error
	n     int
	lastX []float64
	lastF float64
	lastG []float64
}

func (e *evaluator) eval(x []float64) (float64, []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return math.Inf(1), make([]float64, len(x))
	}
	if e.lastX != nil && slices.Equal(e.lastX, x) {
		return e.lastF, e.lastG
	}

	var grad []float64
	if e.withGrad {
		grad = make([]float64, len(x))
	}
	v, err := e.f(x, grad)
	e.n++
	if err != nil {
		e.err = err
		return math.Inf(1), make([]float64, len(x))
	}
	e.lastX = slices.Clone(x)
	e.lastF = v
	e.lastG = grad
	return v, grad
}

func (e *evaluator) value(x []float64) float64 {
	v, _ := e.eval(x)
	return v
}

func (e *evaluator) gradient(grad, x []float64) {
	_, g := e.eval(x)
	copy(grad, g)
}

func (e *evaluator) failure() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *evaluator) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

// DefaultGridValues are the angles tried by Grid when Values is empty.
var DefaultGridValues = []float64{-0.2, -0.1, 0, 0.1, 0.2}

// Grid tries every value broadcast to all parameters, then every single
// parameter set to each non-zero value with the rest at zero. The lowest
// point wins. It never requests gradients.
type Grid struct {
	Values []float64
	// MaxPoints caps the number of evaluations; zero means no cap.
	MaxPoints int
}

// Name implements Optimizer.
func (g *Grid) Name() string { return MethodGrid }

// NeedsGradient implements Optimizer.
func (g *Grid) NeedsGradient() bool { return false }

// Points returns the candidate points for dim parameters in evaluation order.
func (g *Grid) Points(dim int) [][]float64 {
	values := g.Values
	if len(values) == 0 {
		values = DefaultGridValues
	}

	var points [][]float64
	for _, v := range values {
		p := make([]float64, dim)
		for i := range p {
			p[i] = v
		}
		points = append(points, p)
	}
	for i := 0; i < dim; i++ {
		for _, v := range values {
			if v == 0 {
				continue
			}
			p := make([]float64, dim)
			p[i] = v
			points = append(points, p)
		}
	}
	if g.MaxPoints > 0 && len(points) > g.MaxPoints {
		points = points[:g.MaxPoints]
	}
	return points
}

// Optimize implements Optimizer.
func (g *Grid) Optimize(ctx context.Context, f Objective, dim int) (Result, error) {
	if dim <= 0 {
		return Result{}, fmt.Errorf("dimension must be positive, got %d", dim)
	}

	best := Result{Value: math.Inf(1), Status: "GridExhausted"}
	for _, p := range g.Points(dim) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		v, err := f(p, nil)
		best.Evaluations++
		if err != nil {
			return Result{}, err
		}
		if v < best.Value {
			best.Value = v
			best.X = p
		}
	}
	best.Iterations = best.Evaluations
	if best.X == nil {
		return Result{}, errors.New("grid produced no finite point")
	}
	return best, nil
}
