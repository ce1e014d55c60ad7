// Package runs persists MC-VQE runs and their results.
package runs

import (
	"errors"
	"time"

	"github.com/aristath/mcvqe/internal/modules/mcvqe"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one stored run. Result is nil until the run completes.
type Run struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Status        Status         `json:"status"`
	NChromophores int            `json:"n_chromophores"`
	NStates       int            `json:"n_states"`
	Cyclic        bool           `json:"cyclic"`
	Optimizer     string         `json:"optimizer"`
	AverageEnergy *float64       `json:"average_energy,omitempty"`
	Error         string         `json:"error,omitempty"`
	Options       *mcvqe.Options `json:"options,omitempty"`
	Result        *mcvqe.Result  `json:"result,omitempty"`
}

// Summary is the list view of a run without options or result payloads.
type Summary struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Status        Status    `json:"status"`
	NChromophores int       `json:"n_chromophores"`
	NStates       int       `json:"n_states"`
	Cyclic        bool      `json:"cyclic"`
	Optimizer     string    `json:"optimizer"`
	AverageEnergy *float64  `json:"average_energy,omitempty"`
	Error         string    `json:"error,omitempty"`
}
