// Package mcvqe implements the multi-configurational variational quantum
// eigensolver: a single shared entangler is optimized against the average
// energy of all CIS reference states, and an interference stage couples the
// optimized states into a small matrix whose eigenvalues form the corrected
// excitation spectrum.
package mcvqe

import (
	"errors"
	"fmt"

	"github.com/aristath/mcvqe/internal/modules/chromophore"
)

var (
	// ErrInvalidOptions wraps every configuration error reported by Validate and New.
	ErrInvalidOptions = errors.New("invalid mc-vqe options")
	// ErrBackend wraps failures of the execution backend. They are never retried.
	ErrBackend = errors.New("backend evaluation failed")
)

// Options configures one MC-VQE run.
type Options struct {
	// NChromophores is the number of sites. Required.
	NChromophores int `json:"n_chromophores" msgpack:"n_chromophores"`
	// Sites holds one record per site in data-file units (angstrom, debye).
	Sites []chromophore.Site `json:"sites" msgpack:"sites"`
	// Cyclic couples the last site back to the first.
	Cyclic bool `json:"cyclic" msgpack:"cyclic"`
	// NStates is the number of reference states; zero selects NChromophores+1.
	NStates int `json:"n_states" msgpack:"n_states"`
	// Interference enables the off-diagonal stage after optimization.
	Interference bool `json:"interference" msgpack:"interference"`
	// Verbosity selects the diagnostic log level and never changes results.
	Verbosity int `json:"verbosity" msgpack:"verbosity"`
	// Workers bounds parallel backend evaluations; zero means one per state.
	Workers int `json:"workers" msgpack:"workers"`
}

// DefaultOptions returns options with interference enabled and milestone logging.
func DefaultOptions() Options {
	return Options{
		Interference: true,
		Verbosity:    1,
	}
}

// States returns the effective number of reference states.
func (o Options) States() int {
	if o.NStates == 0 {
		return o.NChromophores + 1
	}
	return o.NStates
}

// Validate reports every configuration problem at once.
func (o Options) Validate() error {
	var errs []error
	if o.NChromophores <= 0 {
		errs = append(errs, fmt.Errorf("number of chromophores must be positive, got %d", o.NChromophores))
	}
	if len(o.Sites) != o.NChromophores {
		errs = append(errs, fmt.Errorf("expected %d site records, got %d", o.NChromophores, len(o.Sites)))
	}
	if o.NStates < 0 || (o.NChromophores > 0 && o.NStates > o.NChromophores+1) {
		errs = append(errs, fmt.Errorf("number of states must be between 0 and %d (0 means %d), got %d", o.NChromophores+1, o.NChromophores+1, o.NStates))
	}
	if o.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be non-negative, got %d", o.Workers))
	}
	if err := chromophore.Validate(o.Sites); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
}
