package events

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunStartedData tests RunStartedData struct
func TestRunStartedData(t *testing.T) {
	data := RunStartedData{
		RunID:         "run-1",
		NChromophores: 4,
		NStates:       5,
		Cyclic:        true,
		Optimizer:     "nelder-mead",
		Backend:       "statevector",
		Parameters:    20,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"n_chromophores":4`)
	assert.Contains(t, string(jsonData), `"cyclic":true`)

	var unmarshaled RunStartedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
	assert.Equal(t, RunStarted, (&unmarshaled).EventType())
}

// TestIterationCompletedData tests IterationCompletedData struct
func TestIterationCompletedData(t *testing.T) {
	data := IterationCompletedData{
		RunID:         "run-1",
		Iteration:     3,
		AverageEnergy: -1.25,
		BestAverage:   -1.5,
		Energies:      []float64{-2, -0.5},
		Improved:      false,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"best_average":-1.5`)

	var unmarshaled IterationCompletedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		data EventData
		want EventType
	}{
		{&RunStartedData{}, RunStarted},
		{&IterationCompletedData{}, IterationCompleted},
		{&RunCompletedData{}, RunCompleted},
		{&RunFailedData{}, RunFailed},
		{&RunArchivedData{}, RunArchived},
		{&RunsPrunedData{}, RunsPruned},
		{&ErrorEventData{}, ErrorOccurred},
		{&GenericEventData{Type: "CUSTOM"}, EventType("CUSTOM")},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.data.EventType())
		})
	}
	assert.Len(t, AllTypes(), 7)
}

func TestEvent_TypedData(t *testing.T) {
	t.Run("round trips typed payload", func(t *testing.T) {
		original := &RunCompletedData{
			RunID:         "abc",
			AverageEnergy: -0.75,
			Spectrum:      []float64{-1, -0.5},
			Iterations:    12,
			DurationMs:    340,
		}
		event := &Event{Type: RunCompleted, Timestamp: time.Now(), Data: convertEventDataToMap(original)}

		typed, ok := event.TypedData().(*RunCompletedData)
		require.True(t, ok)
		assert.Equal(t, original, typed)
	})

	t.Run("unknown type is generic", func(t *testing.T) {
		event := &Event{Type: "CUSTOM", Data: map[string]interface{}{"k": "v"}}

		typed, ok := event.TypedData().(*GenericEventData)
		require.True(t, ok)
		assert.Equal(t, "v", typed.Data["k"])
	})

	t.Run("nil data", func(t *testing.T) {
		assert.Nil(t, (&Event{Type: RunFailed}).TypedData())
	})
}

func TestConvertEventDataToMap_NonFinite(t *testing.T) {
	// encoding/json refuses NaN and Inf; the event still goes out without data.
	assert.Nil(t, convertEventDataToMap(&IterationCompletedData{BestAverage: math.Inf(1)}))
	assert.Nil(t, convertEventDataToMap(nil))
}
