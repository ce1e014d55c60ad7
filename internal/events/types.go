package events

// EventType identifies a run lifecycle event.
type EventType string

const (
	// RunStarted fires once the solver has finished preprocessing and begins optimizing.
	RunStarted EventType = "RUN_STARTED"
	// IterationCompleted fires after every objective evaluation.
	IterationCompleted EventType = "ITERATION_COMPLETED"
	// RunCompleted fires when a run produced its spectrum.
	RunCompleted EventType = "RUN_COMPLETED"
	// RunFailed fires when a run aborted with an error.
	RunFailed EventType = "RUN_FAILED"
	// RunArchived fires after a finished run was uploaded to object storage.
	RunArchived EventType = "RUN_ARCHIVED"
	// RunsPruned fires after the retention job deleted old runs.
	RunsPruned EventType = "RUNS_PRUNED"
	// ErrorOccurred carries errors that do not belong to a single run.
	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type, in lifecycle order.
func AllTypes() []EventType {
	return []EventType{
		RunStarted,
		IterationCompleted,
		RunCompleted,
		RunFailed,
		RunArchived,
		RunsPruned,
		ErrorOccurred,
	}
}
