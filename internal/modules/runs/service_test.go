package runs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aristath/mcvqe/internal/events"
	"github.com/aristath/mcvqe/internal/modules/gradient"
	"github.com/aristath/mcvqe/internal/modules/mcvqe"
	"github.com/aristath/mcvqe/internal/modules/optimizer"
	testingpkg "github.com/aristath/mcvqe/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchiver struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

func (a *recordingArchiver) Archive(_ context.Context, id string, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.payloads == nil {
		a.payloads = make(map[string][]byte)
	}
	a.payloads[id] = payload
	return nil
}

func gridDefaults() Settings {
	return Settings{Optimizer: optimizer.MethodGrid, Seed: 7}
}

func newTestService(t *testing.T, archiver Archiver, emitter mcvqe.Emitter) *Service {
	t.Helper()
	repo := newTestRepository(t)
	s := NewService(repo, emitter, archiver, gridDefaults(), zerolog.New(nil).Level(zerolog.Disabled))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func quietOptions(n int) mcvqe.Options {
	opts := mcvqe.DefaultOptions()
	opts.NChromophores = n
	opts.Sites = testingpkg.NewSiteFixtures(n)
	opts.Verbosity = 0
	return opts
}

func TestSettings_Merge(t *testing.T) {
	defaults := Settings{Optimizer: "nelder-mead", MaxIterations: 200, Gradient: "central", Shots: 100, Seed: 3, Workers: 2}

	assert.Equal(t, defaults, Settings{}.Merge(defaults))

	custom := Settings{Optimizer: "bfgs", MaxIterations: 5, Gradient: "forward", Shots: 10, Seed: 9, Workers: 4}
	assert.Equal(t, custom, custom.Merge(defaults))
}

func TestBuildDependencies(t *testing.T) {
	t.Run("derivative free", func(t *testing.T) {
		deps, err := BuildDependencies(Settings{Optimizer: optimizer.MethodNelderMead}, nil)
		require.NoError(t, err)
		assert.Equal(t, "statevector", deps.Backend.Name())
		assert.Nil(t, deps.Gradient)
	})

	t.Run("gradient optimizer defaults to parameter shift", func(t *testing.T) {
		deps, err := BuildDependencies(Settings{Optimizer: optimizer.MethodBFGS}, nil)
		require.NoError(t, err)
		require.NotNil(t, deps.Gradient)
		assert.Equal(t, gradient.NameParameterShift, deps.Gradient.Name())
	})

	t.Run("shots", func(t *testing.T) {
		deps, err := BuildDependencies(Settings{Optimizer: optimizer.MethodGrid, Shots: 500}, nil)
		require.NoError(t, err)
		assert.Equal(t, "statevector-shots-500", deps.Backend.Name())
	})

	for name, settings := range map[string]Settings{
		"unknown optimizer": {Optimizer: "simulated-annealing"},
		"unknown gradient":  {Optimizer: optimizer.MethodBFGS, Gradient: "adjoint"},
		"negative shots":    {Optimizer: optimizer.MethodGrid, Shots: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := BuildDependencies(settings, nil)
			assert.ErrorIs(t, err, mcvqe.ErrInvalidOptions)
		})
	}
}

func TestService_SubmitCompletesAndArchives(t *testing.T) {
	archiver := &recordingArchiver{}
	emitter := &testingpkg.RecordingEmitter{}
	s := newTestService(t, archiver, emitter)

	id, err := s.Submit(quietOptions(2), Settings{})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	s.Wait()

	run, err := s.Repository().Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, optimizer.MethodGrid, run.Optimizer)
	require.NotNil(t, run.Result)
	assert.Equal(t, id, run.Result.ID)
	assert.Len(t, run.Result.Spectrum, 3)

	archiver.mu.Lock()
	payload := archiver.payloads[id]
	archiver.mu.Unlock()
	assert.NotEmpty(t, payload)

	types := emitter.Types()
	require.NotEmpty(t, types)
	assert.Equal(t, "RUN_COMPLETED", string(types[len(types)-1]))
	assert.False(t, s.Cancel(id))
}

func TestService_TerminalEventFollowsStoredOutcome(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	bus := events.NewBus(logger)
	s := newTestService(t, nil, events.NewManager(bus, logger))

	var mu sync.Mutex
	seen := make(map[events.EventType]Status)
	for _, eventType := range []events.EventType{events.RunCompleted, events.RunFailed} {
		bus.Subscribe(eventType, func(e *events.Event) {
			id, _ := e.Data["run_id"].(string)
			run, err := s.Repository().Get(id)
			if err != nil {
				return
			}
			mu.Lock()
			seen[e.Type] = run.Status
			mu.Unlock()
		})
	}

	_, err := s.Submit(quietOptions(2), Settings{})
	require.NoError(t, err)
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[events.EventType]Status{events.RunCompleted: StatusCompleted}, seen)
}

func TestTerminalHold(t *testing.T) {
	next := &testingpkg.RecordingEmitter{}
	hold := &terminalHold{next: next}

	hold.EmitTyped(events.RunStarted, "mcvqe", &events.RunStartedData{RunID: "a"})
	hold.EmitTyped(events.RunCompleted, "mcvqe", &events.RunCompletedData{RunID: "a"})
	assert.Equal(t, []events.EventType{events.RunStarted}, next.Types())

	hold.release()
	hold.release()
	assert.Equal(t, []events.EventType{events.RunStarted, events.RunCompleted}, next.Types())

	hold.EmitTyped(events.RunFailed, "mcvqe", &events.RunFailedData{RunID: "a"})
	assert.Equal(t, []events.EventType{events.RunStarted, events.RunCompleted, events.RunFailed}, next.Types())

	var none *terminalHold
	assert.NotPanics(t, none.release)
}

func TestService_SubmitRejectsInvalidOptions(t *testing.T) {
	s := newTestService(t, nil, nil)

	_, err := s.Submit(mcvqe.Options{NChromophores: 2}, Settings{})
	assert.ErrorIs(t, err, mcvqe.ErrInvalidOptions)

	_, err = s.Submit(quietOptions(2), Settings{Optimizer: "unknown"})
	assert.ErrorIs(t, err, mcvqe.ErrInvalidOptions)

	runs, err := s.Repository().List("", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestService_Evaluate(t *testing.T) {
	s := newTestService(t, nil, nil)
	opts := quietOptions(2)

	result, err := s.Evaluate(context.Background(), opts, Settings{}, make([]float64, 6))
	require.NoError(t, err)
	assert.Len(t, result.Diagonal, 3)
	assert.Len(t, result.Spectrum, 3)

	_, err = s.Evaluate(context.Background(), opts, Settings{}, []float64{1})
	assert.ErrorIs(t, err, mcvqe.ErrInvalidOptions)

	runs, err := s.Repository().List("", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestService_ShutdownRecordsOutcome(t *testing.T) {
	s := newTestService(t, nil, nil)

	id, err := s.Submit(quietOptions(3), Settings{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	run, err := s.Repository().Get(id)
	require.NoError(t, err)
	assert.Contains(t, []Status{StatusCompleted, StatusFailed}, run.Status)
}
