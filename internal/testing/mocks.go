package testing

import (
	"context"
	"errors"
	"sync"

	"github.com/aristath/mcvqe/internal/events"
	"github.com/aristath/mcvqe/internal/modules/backend"
	"github.com/aristath/mcvqe/internal/modules/circuit"
	"github.com/aristath/mcvqe/internal/modules/pauli"
)

// ErrMockBackend is returned by MockBackend once its failure point is reached.
var ErrMockBackend = errors.New("mock backend failure")

// MockBackend is a scripted implementation of backend.Backend for testing.
// Energy maps the parameter vector to the returned value; the default
// returns the sum of x.
type MockBackend struct {
	mu      sync.Mutex
	energy  func(c *circuit.Circuit, x []float64) float64
	failAt  int
	calls   int
	circuit []*circuit.Circuit
}

// NewMockBackend creates a mock backend returning energy(c, x)
func NewMockBackend(energy func(c *circuit.Circuit, x []float64) float64) *MockBackend {
	if energy == nil {
		energy = func(_ *circuit.Circuit, x []float64) float64 {
			total := 0.0
			for _, v := range x {
				total += v
			}
			return total
		}
	}
	return &MockBackend{energy: energy}
}

// FailAt makes the n-th call (1-based) and every later call fail
func (m *MockBackend) FailAt(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAt = n
}

// Calls returns the number of Evaluate calls so far
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Circuits returns every circuit evaluated, in call order
func (m *MockBackend) Circuits() []*circuit.Circuit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*circuit.Circuit(nil), m.circuit...)
}

// Name implements backend.Backend
func (m *MockBackend) Name() string { return "mock" }

// Evaluate implements backend.Backend
func (m *MockBackend) Evaluate(ctx context.Context, _ *pauli.Sum, c *circuit.Circuit, x []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.calls++
	m.circuit = append(m.circuit, c)
	failed := m.failAt > 0 && m.calls >= m.failAt
	m.mu.Unlock()

	if failed {
		return 0, ErrMockBackend
	}
	return m.energy(c, x), nil
}

// BatchEvaluate implements backend.Backend
func (m *MockBackend) BatchEvaluate(ctx context.Context, obs *pauli.Sum, execs []backend.Execution) ([]float64, error) {
	out := make([]float64, len(execs))
	for i, e := range execs {
		v, err := m.Evaluate(ctx, obs, e.Circuit, e.Params)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// RecordedEvent is one event captured by RecordingEmitter
type RecordedEvent struct {
	Type   events.EventType
	Module string
	Data   events.EventData
}

// RecordingEmitter captures typed events instead of publishing them
type RecordingEmitter struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// EmitTyped records the event
func (r *RecordingEmitter) EmitTyped(eventType events.EventType, module string, data events.EventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Type: eventType, Module: module, Data: data})
}

// Events returns a copy of the recorded events
func (r *RecordingEmitter) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}

// Types returns the recorded event types in order
func (r *RecordingEmitter) Types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
