package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID         string `json:"run_id"`
	NChromophores int    `json:"n_chromophores"`
	NStates       int    `json:"n_states"`
	Cyclic        bool   `json:"cyclic"`
	Optimizer     string `json:"optimizer"`
	Backend       string `json:"backend"`
	Parameters    int    `json:"parameters"`
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// IterationCompletedData contains data for IterationCompleted events
type IterationCompletedData struct {
	RunID         string    `json:"run_id"`
	Iteration     int       `json:"iteration"`
	AverageEnergy float64   `json:"average_energy"`
	BestAverage   float64   `json:"best_average"`
	Energies      []float64 `json:"energies"`
	Improved      bool      `json:"improved"`
}

// EventType returns the event type for IterationCompletedData
func (d *IterationCompletedData) EventType() EventType {
	return IterationCompleted
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	RunID         string    `json:"run_id"`
	AverageEnergy float64   `json:"average_energy"`
	Spectrum      []float64 `json:"spectrum"`
	Iterations    int       `json:"iterations"`
	DurationMs    int64     `json:"duration_ms"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType {
	return RunCompleted
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}

// RunArchivedData contains data for RunArchived events
type RunArchivedData struct {
	RunID  string `json:"run_id"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Bytes  int    `json:"bytes"`
}

// EventType returns the event type for RunArchivedData
func (d *RunArchivedData) EventType() EventType {
	return RunArchived
}

// RunsPrunedData contains data for RunsPruned events
type RunsPrunedData struct {
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}

// EventType returns the event type for RunsPrunedData
func (d *RunsPrunedData) EventType() EventType {
	return RunsPruned
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// GenericEventData is used for events without a dedicated payload type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"data"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// TypedData converts the event's map payload back into its typed form.
// Unknown types come back as GenericEventData.
func (e *Event) TypedData() EventData {
	if e.Data == nil {
		return nil
	}

	var data EventData
	switch e.Type {
	case RunStarted:
		data = &RunStartedData{}
	case IterationCompleted:
		data = &IterationCompletedData{}
	case RunCompleted:
		data = &RunCompletedData{}
	case RunFailed:
		data = &RunFailedData{}
	case RunArchived:
		data = &RunArchivedData{}
	case RunsPruned:
		data = &RunsPrunedData{}
	case ErrorOccurred:
		data = &ErrorEventData{}
	default:
		return &GenericEventData{Type: e.Type, Data: e.Data}
	}

	if err := convertMapToStruct(e.Data, data); err != nil {
		return nil
	}
	return data
}

// convertMapToStruct converts a map[string]interface{} to a struct
func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

// convertEventDataToMap flattens typed data into the map carried on the bus.
// Data that cannot be encoded (for example a non-finite float) yields nil.
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}

	return result
}
