package mcvqe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/aristath/mcvqe/internal/events"
	"github.com/aristath/mcvqe/internal/modules/aiem"
	"github.com/aristath/mcvqe/internal/modules/backend"
	"github.com/aristath/mcvqe/internal/modules/chromophore"
	"github.com/aristath/mcvqe/internal/modules/circuit"
	"github.com/aristath/mcvqe/internal/modules/gradient"
	"github.com/aristath/mcvqe/internal/modules/optimizer"
	"github.com/aristath/mcvqe/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"
)

// Emitter publishes run lifecycle events.
type Emitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// Dependencies are the collaborators of a Solver. Gradient and Events are
// optional; Gradient is required when the optimizer uses derivatives.
type Dependencies struct {
	Backend   backend.Backend
	Optimizer optimizer.Optimizer
	Gradient  gradient.Strategy
	Events    Emitter
}

// Solver runs MC-VQE for one aggregate. The Hamiltonian, reference states and
// angles are computed once by New and never change.
type Solver struct {
	id      string
	opts    Options
	deps    Dependencies
	log     zerolog.Logger
	nStates int
	workers int

	model     *aiem.Model
	reference aiem.Spectrum
	angles    *mat.Dense
	entangler *circuit.Circuit
	kernels   []*circuit.Circuit
	objective *Objective
}

// New validates opts, builds the AIEM Hamiltonian and the CIS reference
// states, and prepares one circuit per state. Configuration and numerical
// errors surface here, before any backend call.
func New(opts Options, deps Dependencies, log zerolog.Logger) (*Solver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("%w: no execution backend", ErrInvalidOptions)
	}
	if deps.Optimizer == nil {
		return nil, fmt.Errorf("%w: no optimizer", ErrInvalidOptions)
	}
	if deps.Optimizer.NeedsGradient() && deps.Gradient == nil {
		return nil, fmt.Errorf("%w: optimizer %s needs a gradient strategy", ErrInvalidOptions, deps.Optimizer.Name())
	}

	start := time.Now()
	s := &Solver{
		id:      uuid.New().String(),
		opts:    opts,
		deps:    deps,
		nStates: opts.States(),
		workers: opts.Workers,
	}
	if s.workers == 0 {
		s.workers = s.nStates
	}
	s.log = log.Level(logger.LevelFromVerbosity(opts.Verbosity)).With().
		Str("component", "mcvqe").
		Str("run_id", s.id).
		Logger()

	topo := chromophore.Topology{N: opts.NChromophores, Cyclic: opts.Cyclic}
	model, err := aiem.Build(chromophore.ToAtomicUnits(opts.Sites), topo)
	if err != nil {
		return nil, fmt.Errorf("build AIEM hamiltonian: %w", err)
	}
	reference, err := model.Diagonalize()
	if err != nil {
		return nil, fmt.Errorf("diagonalize reference matrix: %w", err)
	}

	s.model = model
	s.reference = reference
	s.angles = circuit.AngleMatrix(reference.Vectors, s.nStates)
	s.entangler = circuit.Entangler(opts.NChromophores, opts.Cyclic)
	s.kernels = make([]*circuit.Circuit, s.nStates)
	for state := range s.kernels {
		s.kernels[state] = circuit.StatePreparation(s.stateAngles(state)).Compose(s.entangler)
	}
	s.objective = s.newObjective()

	s.log.Info().
		Int("n_chromophores", opts.NChromophores).
		Int("n_states", s.nStates).
		Bool("cyclic", opts.Cyclic).
		Int("hamiltonian_terms", model.Hamiltonian.NumTerms()).
		Int("parameters", s.entangler.NumVariables()).
		Dur("duration", time.Since(start)).
		Msg("AIEM Hamiltonian and state preparation parameters ready")
	for state, kernel := range s.kernels {
		s.log.Trace().Int("state", state).Str("circuit", kernel.String()).Msg("State circuit")
	}
	return s, nil
}

// WithID overrides the generated run identifier.
func (s *Solver) WithID(id string) *Solver {
	s.id = id
	s.log = s.log.With().Str("run_id", id).Logger()
	s.objective.runID = id
	return s
}

// ID returns the run identifier.
func (s *Solver) ID() string { return s.id }

// Model returns the AIEM model built for the run.
func (s *Solver) Model() *aiem.Model { return s.model }

// ReferenceSpectrum returns the CIS energies and eigenvectors.
func (s *Solver) ReferenceSpectrum() aiem.Spectrum { return s.reference }

// Angles returns the N x nStates state-preparation angle matrix.
func (s *Solver) Angles() *mat.Dense { return s.angles }

// NumParameters returns the size of the shared entangler parameter vector.
func (s *Solver) NumParameters() int { return s.entangler.NumVariables() }

// Objective returns the averaged-energy objective used by Run.
func (s *Solver) Objective() *Objective { return s.objective }

func (s *Solver) newObjective() *Objective {
	o := newObjective(s.kernels, s.model.Hamiltonian, s.deps.Backend, s.deps.Gradient, s.workers, s.log)
	o.runID = s.id
	o.emitter = s.deps.Events
	return o
}

func (s *Solver) stateAngles(state int) []float64 {
	return mat.Col(nil, state, s.angles)
}

// Run optimizes the shared entangler against the average energy and, when
// enabled, computes the interference matrix and its spectrum at the optimum.
// Optimizer non-convergence is not an error; backend failures are.
func (s *Solver) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	s.emit(events.RunStarted, &events.RunStartedData{
		RunID:         s.id,
		NChromophores: s.opts.NChromophores,
		NStates:       s.nStates,
		Cyclic:        s.opts.Cyclic,
		Optimizer:     s.deps.Optimizer.Name(),
		Backend:       s.deps.Backend.Name(),
		Parameters:    s.NumParameters(),
	})

	result, err := s.run(ctx, start)
	if err != nil {
		s.log.Error().Err(err).Msg("MC-VQE run failed")
		s.emit(events.RunFailed, &events.RunFailedData{RunID: s.id, Error: err.Error()})
		return nil, err
	}

	s.emit(events.RunCompleted, &events.RunCompletedData{
		RunID:         s.id,
		AverageEnergy: result.AverageEnergy,
		Spectrum:      result.Spectrum,
		Iterations:    result.Iterations,
		DurationMs:    result.Duration.Milliseconds(),
	})
	return result, nil
}

func (s *Solver) run(ctx context.Context, start time.Time) (*Result, error) {
	s.log.Info().Str("optimizer", s.deps.Optimizer.Name()).Msg("Starting the MC-VQE optimization")

	opt, err := s.deps.Optimizer.Optimize(ctx, s.objective.Func(ctx), s.NumParameters())
	if err != nil {
		return nil, fmt.Errorf("optimize entangler: %w", err)
	}

	_, diagonal, ok := s.objective.Best()
	if !ok {
		return nil, errors.New("optimizer finished without evaluating the objective")
	}

	s.log.Info().
		Float64("average_energy", opt.Value).
		Int("evaluations", opt.Evaluations).
		Str("status", opt.Status).
		Dur("duration", time.Since(start)).
		Msg("MC-VQE entangler optimization finished")

	result := s.newResult(opt.Value, opt.X, diagonal)
	result.Iterations = s.objective.Iterations()
	result.Evaluations = opt.Evaluations
	result.Status = opt.Status
	result.Trace = s.objective.Trace()
	result.Smoothed = Smooth(result.Trace, SmoothingPeriod)

	if err := s.finish(ctx, result); err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

// Evaluate computes the per-state energies at fixed parameters x without
// optimizing, followed by the interference stage when enabled.
func (s *Solver) Evaluate(ctx context.Context, x []float64) (*Result, error) {
	if len(x) != s.NumParameters() {
		return nil, fmt.Errorf("%w: expected %d parameters, got %d", ErrInvalidOptions, s.NumParameters(), len(x))
	}

	start := time.Now()
	energies, _, err := s.objective.evaluateStates(ctx, x, false)
	if err != nil {
		return nil, err
	}
	average := 0.0
	for _, e := range energies {
		average += e / float64(len(energies))
	}
	for state, e := range energies {
		s.log.Debug().Int("state", state).Float64("energy", e).Msg("State energy")
	}

	last := s.kernels[len(s.kernels)-1]
	result := s.newResult(average, slices.Clone(x), energies)
	result.CircuitDepth = last.Depth()
	result.NumInstructions = last.NInstructions()

	if err := s.finish(ctx, result); err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (s *Solver) newResult(average float64, x, diagonal []float64) *Result {
	stats := s.objective.Metadata()
	return &Result{
		ID:                s.id,
		NChromophores:     s.opts.NChromophores,
		NStates:           s.nStates,
		Cyclic:            s.opts.Cyclic,
		Backend:           s.deps.Backend.Name(),
		Optimizer:         s.deps.Optimizer.Name(),
		AverageEnergy:     average,
		Parameters:        x,
		CircuitDepth:      stats.Depth,
		NumInstructions:   stats.NumInstructions,
		ReferenceEnergies: slices.Clone(s.reference.Energies[:s.nStates]),
		Diagonal:          diagonal,
		Host:              CollectHost(),
	}
}

// finish runs the interference stage and diagonalization when enabled.
func (s *Solver) finish(ctx context.Context, result *Result) error {
	if !s.opts.Interference {
		return nil
	}

	start := time.Now()
	s.log.Info().Msg("Computing Hamiltonian matrix elements in the interference state basis")
	m, err := s.Interference(ctx, result.Parameters, result.Diagonal)
	if err != nil {
		return err
	}
	s.log.Info().Dur("duration", time.Since(start)).Msg("Interference basis Hamiltonian matrix elements computed")

	spectrum, err := aiem.Diagonalize(m)
	if err != nil {
		return fmt.Errorf("diagonalize entangled hamiltonian: %w", err)
	}
	result.EntangledHamiltonian = denseRows(m)
	result.Spectrum = spectrum.Energies
	result.Eigenvectors = denseRows(spectrum.Vectors)
	s.log.Info().Floats64("spectrum", spectrum.Energies).Msg("MC-VQE energy spectrum")
	return nil
}

// Interference builds the entangled Hamiltonian at x: the diagonal is copied
// from diagonal, and entry (a, b) is (E+ - E-)/sqrt(2) where E+ and E- are the
// energies of the states prepared from (angles_a +- angles_b)/sqrt(2).
func (s *Solver) Interference(ctx context.Context, x, diagonal []float64) (*mat.SymDense, error) {
	if len(diagonal) != s.nStates {
		return nil, fmt.Errorf("expected %d diagonal entries, got %d", s.nStates, len(diagonal))
	}

	type pair struct{ a, b int }
	var pairs []pair
	for a := 0; a < s.nStates-1; a++ {
		for b := a + 1; b < s.nStates; b++ {
			pairs = append(pairs, pair{a, b})
		}
	}
	values := make([]float64, len(pairs))

	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(s.workers)
	for i, pr := range pairs {
		p.Go(func(ctx context.Context) error {
			plus, err := s.superpositionEnergy(ctx, pr.a, pr.b, 1, x)
			if err != nil {
				return err
			}
			minus, err := s.superpositionEnergy(ctx, pr.a, pr.b, -1, x)
			if err != nil {
				return err
			}
			values[i] = (plus - minus) / math.Sqrt2
			s.log.Debug().Int("state_a", pr.a).Int("state_b", pr.b).Float64("element", values[i]).Msg("Interference element")
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	m := mat.NewSymDense(s.nStates, nil)
	for i, e := range diagonal {
		m.SetSym(i, i, e)
	}
	for i, pr := range pairs {
		m.SetSym(pr.a, pr.b, values[i])
	}
	return m, nil
}

func (s *Solver) superpositionEnergy(ctx context.Context, a, b int, sign float64, x []float64) (float64, error) {
	angles := circuit.Superposition(s.stateAngles(a), s.stateAngles(b), sign)
	kernel := circuit.StatePreparation(angles).Compose(s.entangler)
	e, err := s.deps.Backend.Evaluate(ctx, s.model.Hamiltonian, kernel, x)
	if err != nil {
		return 0, backendError(err, "interference (%d,%d)", a, b)
	}
	return e, nil
}

func (s *Solver) emit(eventType events.EventType, data events.EventData) {
	if s.deps.Events != nil {
		s.deps.Events.EmitTyped(eventType, "mcvqe", data)
	}
}

func denseRows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
