package backend

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/aristath/mcvqe/internal/modules/circuit"
	"github.com/aristath/mcvqe/internal/modules/pauli"
)

// MaxQubits bounds the register size the statevector simulator accepts.
const MaxQubits = 24

// State is a dense statevector. Qubit q is bit q of the basis index.
type State struct {
	NumQubits  int
	Amplitudes []complex128
}

// NewState returns |0...0> on n qubits.
func NewState(n int) (*State, error) {
	if n < 0 || n > MaxQubits {
		return nil, fmt.Errorf("statevector supports 0 to %d qubits, got %d", MaxQubits, n)
	}
	amps := make([]complex128, 1<<n)
	amps[0] = 1
	return &State{NumQubits: n, Amplitudes: amps}, nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	amps := make([]complex128, len(s.Amplitudes))
	copy(amps, s.Amplitudes)
	return &State{NumQubits: s.NumQubits, Amplitudes: amps}
}

// Run applies every instruction in order.
func (s *State) Run(instructions []circuit.BoundInstruction) error {
	for _, inst := range instructions {
		if err := s.Apply(inst); err != nil {
			return err
		}
	}
	return nil
}

// Apply applies one bound instruction.
func (s *State) Apply(inst circuit.BoundInstruction) error {
	for _, q := range inst.Qubits {
		if q < 0 || q >= s.NumQubits {
			return fmt.Errorf("%s on qubit %d of a %d-qubit register", inst.Gate, q, s.NumQubits)
		}
	}

	q := inst.Qubits[0]
	switch inst.Gate {
	case circuit.H:
		h := complex(1/math.Sqrt2, 0)
		s.apply1(q, h, h, h, -h)
	case circuit.X:
		s.apply1(q, 0, 1, 1, 0)
	case circuit.Z:
		s.phase(q, -1)
	case circuit.S:
		s.phase(q, 1i)
	case circuit.Sdg:
		s.phase(q, -1i)
	case circuit.RX:
		c, sn := math.Cos(inst.Angles[0]/2), math.Sin(inst.Angles[0]/2)
		s.apply1(q, complex(c, 0), complex(0, -sn), complex(0, -sn), complex(c, 0))
	case circuit.RY:
		c, sn := math.Cos(inst.Angles[0]/2), math.Sin(inst.Angles[0]/2)
		s.apply1(q, complex(c, 0), complex(-sn, 0), complex(sn, 0), complex(c, 0))
	case circuit.RZ:
		p := cmplx.Exp(complex(0, inst.Angles[0]/2))
		s.apply1(q, cmplx.Conj(p), 0, 0, p)
	case circuit.CNOT:
		s.cnot(inst.Qubits[0], inst.Qubits[1])
	default:
		return fmt.Errorf("unsupported gate %q", inst.Gate)
	}
	return nil
}

// apply1 applies the 2x2 matrix [[a, b], [c, d]] to qubit q.
func (s *State) apply1(q int, a, b, c, d complex128) {
	bit := 1 << q
	for i := range s.Amplitudes {
		if i&bit == 0 {
			j := i | bit
			v0, v1 := s.Amplitudes[i], s.Amplitudes[j]
			s.Amplitudes[i] = a*v0 + b*v1
			s.Amplitudes[j] = c*v0 + d*v1
		}
	}
}

func (s *State) phase(q int, factor complex128) {
	bit := 1 << q
	for i := range s.Amplitudes {
		if i&bit != 0 {
			s.Amplitudes[i] *= factor
		}
	}
}

func (s *State) cnot(control, target int) {
	cBit, tBit := 1<<control, 1<<target
	for i := range s.Amplitudes {
		if i&cBit != 0 && i&tBit == 0 {
			j := i | tBit
			s.Amplitudes[i], s.Amplitudes[j] = s.Amplitudes[j], s.Amplitudes[i]
		}
	}
}

// Probabilities returns |amplitude|^2 for every basis state.
func (s *State) Probabilities() []float64 {
	out := make([]float64, len(s.Amplitudes))
	for i, a := range s.Amplitudes {
		out[i] = real(a)*real(a) + imag(a)*imag(a)
	}
	return out
}

// Expectation returns <s|obs|s>. Sites beyond the register are an error.
func (s *State) Expectation(obs *pauli.Sum) (float64, error) {
	if obs.MaxSite() >= s.NumQubits {
		return 0, fmt.Errorf("observable acts on site %d of a %d-qubit register", obs.MaxSite(), s.NumQubits)
	}

	value := obs.Offset
	for _, term := range obs.Terms() {
		value += term.Coeff * s.termExpectation(term)
	}
	return value, nil
}

// termExpectation evaluates <s|P|s> for one Pauli string P. P maps |i> to
// phase(i) |i ^ flip>, so the expectation is sum_i conj(a[i^flip]) phase(i) a[i].
func (s *State) termExpectation(term pauli.Term) float64 {
	var flip, zmask, ycount int
	for _, op := range term.Ops {
		bit := 1 << op.Site
		switch op.Axis {
		case pauli.X:
			flip |= bit
		case pauli.Y:
			flip |= bit
			zmask |= bit
			ycount++
		case pauli.Z:
			zmask |= bit
		}
	}

	// Y = i X Z, so each Y contributes a factor i on top of the Z sign.
	global := complex(1, 0)
	for k := 0; k < ycount%4; k++ {
		global *= 1i
	}

	var sum complex128
	for i, a := range s.Amplitudes {
		if a == 0 {
			continue
		}
		p := global
		if parity(i&zmask) == 1 {
			p = -p
		}
		sum += cmplx.Conj(s.Amplitudes[i^flip]) * p * a
	}
	return real(sum)
}

func parity(x int) int {
	p := 0
	for x != 0 {
		p ^= 1
		x &= x - 1
	}
	return p
}
