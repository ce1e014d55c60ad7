package mcvqe

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SmoothingPeriod is the EMA period applied to the energy trace.
const SmoothingPeriod = 10

// Result is the outcome of a run or a fixed-parameter evaluation.
type Result struct {
	ID            string `json:"id" msgpack:"id"`
	NChromophores int    `json:"n_chromophores" msgpack:"n_chromophores"`
	NStates       int    `json:"n_states" msgpack:"n_states"`
	Cyclic        bool   `json:"cyclic" msgpack:"cyclic"`
	Backend       string `json:"backend" msgpack:"backend"`
	Optimizer     string `json:"optimizer" msgpack:"optimizer"`

	AverageEnergy   float64   `json:"average_energy" msgpack:"average_energy"`
	Parameters      []float64 `json:"parameters" msgpack:"parameters"`
	CircuitDepth    int       `json:"circuit_depth" msgpack:"circuit_depth"`
	NumInstructions int       `json:"n_gates" msgpack:"n_gates"`

	ReferenceEnergies []float64 `json:"reference_energies" msgpack:"reference_energies"`
	// Diagonal holds the per-state energies of the best average seen.
	Diagonal []float64 `json:"diagonal" msgpack:"diagonal"`

	// Interference stage output; empty when the stage is disabled.
	EntangledHamiltonian [][]float64 `json:"entangled_hamiltonian,omitempty" msgpack:"entangled_hamiltonian,omitempty"`
	Spectrum             []float64   `json:"spectrum,omitempty" msgpack:"spectrum,omitempty"`
	Eigenvectors         [][]float64 `json:"eigenvectors,omitempty" msgpack:"eigenvectors,omitempty"`

	Iterations  int       `json:"iterations" msgpack:"iterations"`
	Evaluations int       `json:"evaluations" msgpack:"evaluations"`
	Status      string    `json:"status,omitempty" msgpack:"status,omitempty"`
	Trace       []float64 `json:"trace,omitempty" msgpack:"trace,omitempty"`
	Smoothed    []float64 `json:"smoothed,omitempty" msgpack:"smoothed,omitempty"`

	Duration time.Duration `json:"duration" msgpack:"duration"`
	Host     *HostInfo     `json:"host,omitempty" msgpack:"host,omitempty"`
}

// SpectrumText renders the corrected spectrum, one energy per line.
func (r *Result) SpectrumText() string {
	var sb strings.Builder
	sb.WriteString("MC-VQE energy spectrum")
	for _, e := range r.Spectrum {
		fmt.Fprintf(&sb, "\n%.9g", e)
	}
	return sb.String()
}

// Metadata returns the run metadata under its conventional keys.
func (r *Result) Metadata() map[string]interface{} {
	md := map[string]interface{}{
		"opt-average-energy": r.AverageEnergy,
		"circuit-depth":      r.CircuitDepth,
		"n-gates":            r.NumInstructions,
		"opt-params":         r.Parameters,
	}
	if len(r.Spectrum) > 0 {
		md["opt-spectrum"] = r.SpectrumText()
	}
	return md
}

// Smooth returns the exponential moving average of trace. Entries inside the
// warm-up window keep their raw values.
func Smooth(trace []float64, period int) []float64 {
	if len(trace) == 0 {
		return nil
	}
	out := make([]float64, len(trace))
	copy(out, trace)
	if period < 2 || len(trace) < period {
		return out
	}

	ema := talib.Ema(trace, period)
	for i := period - 1; i < len(ema); i++ {
		out[i] = ema[i]
	}
	return out
}

// HostInfo is a snapshot of the machine that executed a run.
type HostInfo struct {
	NumCPU        int     `json:"num_cpu" msgpack:"num_cpu"`
	CPUPercent    float64 `json:"cpu_percent" msgpack:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent" msgpack:"memory_percent"`
	MemoryTotalMB float64 `json:"memory_total_mb" msgpack:"memory_total_mb"`
}

// CollectHost samples CPU and memory usage. Unavailable counters are left zero.
func CollectHost() *HostInfo {
	info := &HostInfo{NumCPU: runtime.NumCPU()}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		info.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryPercent = vm.UsedPercent
		info.MemoryTotalMB = float64(vm.Total) / 1024 / 1024
	}
	return info
}
