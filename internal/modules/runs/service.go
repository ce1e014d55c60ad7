package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/mcvqe/internal/events"
	"github.com/aristath/mcvqe/internal/modules/backend"
	"github.com/aristath/mcvqe/internal/modules/gradient"
	"github.com/aristath/mcvqe/internal/modules/mcvqe"
	"github.com/aristath/mcvqe/internal/modules/optimizer"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Settings selects the execution stack of a run. Zero fields fall back to
// the service defaults.
type Settings struct {
	Optimizer     string `json:"optimizer,omitempty" msgpack:"optimizer,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty" msgpack:"max_iterations,omitempty"`
	Gradient      string `json:"gradient,omitempty" msgpack:"gradient,omitempty"`
	Shots         int    `json:"shots,omitempty" msgpack:"shots,omitempty"`
	Seed          int64  `json:"seed,omitempty" msgpack:"seed,omitempty"`
	// Workers applies to options that leave Workers at zero.
	Workers int `json:"workers,omitempty" msgpack:"workers,omitempty"`
}

// Merge fills zero fields of s from defaults.
func (s Settings) Merge(defaults Settings) Settings {
	if s.Optimizer == "" {
		s.Optimizer = defaults.Optimizer
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = defaults.MaxIterations
	}
	if s.Gradient == "" {
		s.Gradient = defaults.Gradient
	}
	if s.Shots == 0 {
		s.Shots = defaults.Shots
	}
	if s.Seed == 0 {
		s.Seed = defaults.Seed
	}
	if s.Workers == 0 {
		s.Workers = defaults.Workers
	}
	return s
}

// BuildDependencies constructs the backend, optimizer and gradient strategy
// named by settings. Unknown names are configuration errors.
func BuildDependencies(settings Settings, emitter mcvqe.Emitter) (mcvqe.Dependencies, error) {
	b, err := backend.NewStatevector(settings.Shots, settings.Seed)
	if err != nil {
		return mcvqe.Dependencies{}, fmt.Errorf("%w: %w", mcvqe.ErrInvalidOptions, err)
	}
	opt, err := optimizer.New(settings.Optimizer, settings.MaxIterations)
	if err != nil {
		return mcvqe.Dependencies{}, fmt.Errorf("%w: %w", mcvqe.ErrInvalidOptions, err)
	}

	deps := mcvqe.Dependencies{Backend: b, Optimizer: opt, Events: emitter}
	name := settings.Gradient
	if name == "" && opt.NeedsGradient() {
		name = gradient.NameParameterShift
	}
	if name != "" {
		g, err := gradient.New(name)
		if err != nil {
			return mcvqe.Dependencies{}, fmt.Errorf("%w: %w", mcvqe.ErrInvalidOptions, err)
		}
		deps.Gradient = g
	}
	return deps, nil
}

// Archiver copies finished run payloads to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, id string, payload []byte) error
}

// Service runs submitted jobs in the background and records their outcome.
type Service struct {
	repo     *Repository
	emitter  mcvqe.Emitter
	archiver Archiver
	defaults Settings
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewService creates a run service. emitter and archiver may be nil.
func NewService(repo *Repository, emitter mcvqe.Emitter, archiver Archiver, defaults Settings, log zerolog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:     repo,
		emitter:  emitter,
		archiver: archiver,
		defaults: defaults,
		log:      log.With().Str("service", "runs").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		running:  make(map[string]context.CancelFunc),
	}
}

// Repository returns the run store.
func (s *Service) Repository() *Repository {
	return s.repo
}

func (s *Service) solver(opts mcvqe.Options, settings Settings, emitter mcvqe.Emitter) (*mcvqe.Solver, Settings, error) {
	settings = settings.Merge(s.defaults)
	deps, err := BuildDependencies(settings, emitter)
	if err != nil {
		return nil, settings, err
	}
	if opts.Workers == 0 {
		opts.Workers = settings.Workers
	}
	solver, err := mcvqe.New(opts, deps, s.log)
	if err != nil {
		return nil, settings, err
	}
	return solver, settings, nil
}

// Submit validates opts, stores a pending run and starts it in the
// background. Configuration errors are returned before anything is stored.
func (s *Service) Submit(opts mcvqe.Options, settings Settings) (string, error) {
	var terminal *terminalHold
	var emitter mcvqe.Emitter
	if s.emitter != nil {
		terminal = &terminalHold{next: s.emitter}
		emitter = terminal
	}
	solver, settings, err := s.solver(opts, settings, emitter)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	solver.WithID(id)

	if err := s.repo.Create(id, opts, settings.Optimizer); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.running[id] = cancel
	s.mu.Unlock()

	s.wg.Go(func() {
		defer s.release(id)
		s.execute(ctx, id, solver, terminal)
	})
	return id, nil
}

// Cancel stops a running job. It reports false when id is not running.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *Service) release(id string) {
	s.mu.Lock()
	if cancel, ok := s.running[id]; ok {
		cancel()
		delete(s.running, id)
	}
	s.mu.Unlock()
}

// execute runs solver and stores the outcome. The solver's terminal event is
// held until the outcome is stored, so a subscriber that reads the store on
// RUN_COMPLETED or RUN_FAILED sees the final status.
func (s *Service) execute(ctx context.Context, id string, solver *mcvqe.Solver, terminal *terminalHold) {
	defer terminal.release()
	log := s.log.With().Str("run_id", id).Logger()
	if err := s.repo.MarkRunning(id); err != nil {
		log.Error().Err(err).Msg("Failed to mark run as running")
	}

	start := time.Now()
	result, err := solver.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Run failed")
		if ferr := s.repo.Fail(id, err); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to record run failure")
		}
		return
	}

	if err := s.repo.Complete(id, result); err != nil {
		log.Error().Err(err).Msg("Failed to store run result")
		if ferr := s.repo.Fail(id, err); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to record run failure")
		}
		return
	}
	terminal.release()
	log.Info().
		Float64("average_energy", result.AverageEnergy).
		Floats64("spectrum", result.Spectrum).
		Dur("duration", time.Since(start)).
		Msg("Run completed")

	if s.archiver == nil {
		return
	}
	payload, err := s.repo.Payload(id)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load run payload for archiving")
		return
	}
	if err := s.archiver.Archive(ctx, id, payload); err != nil {
		log.Warn().Err(err).Msg("Failed to archive run")
	}
}

// Evaluate runs a synchronous fixed-parameter evaluation; nothing is stored.
func (s *Service) Evaluate(ctx context.Context, opts mcvqe.Options, settings Settings, x []float64) (*mcvqe.Result, error) {
	solver, _, err := s.solver(opts, settings, s.emitter)
	if err != nil {
		return nil, err
	}
	return solver.Evaluate(ctx, x)
}

// Wait blocks until every submitted run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown cancels running jobs and waits for them to record their outcome.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("runs still active at shutdown"), ctx.Err())
	}
}

// terminalHold forwards events to next but keeps RUN_COMPLETED and
// RUN_FAILED back until release is called. A nil hold is a no-op.
type terminalHold struct {
	next mcvqe.Emitter

	mu       sync.Mutex
	held     []heldEvent
	released bool
}

type heldEvent struct {
	eventType events.EventType
	module    string
	data      events.EventData
}

// EmitTyped implements mcvqe.Emitter.
func (h *terminalHold) EmitTyped(eventType events.EventType, module string, data events.EventData) {
	if eventType == events.RunCompleted || eventType == events.RunFailed {
		h.mu.Lock()
		if !h.released {
			h.held = append(h.held, heldEvent{eventType, module, data})
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()
	}
	h.next.EmitTyped(eventType, module, data)
}

// release forwards the held events once; later terminal events pass through.
func (h *terminalHold) release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	held := h.held
	h.held = nil
	h.released = true
	h.mu.Unlock()

	for _, e := range held {
		h.next.EmitTyped(e.eventType, e.module, e.data)
	}
}
