// Package circuit defines the gate-level intermediate representation used by
// the MC-VQE state-preparation and entangler circuits, together with the
// builders for both circuit kinds.
package circuit

import (
	"fmt"
	"strconv"
	"strings"
)

// Gate names an instruction. Rotations take one angle; everything else is
// parameter free.
type Gate string

// Supported gates.
const (
	RX   Gate = "RX"
	RY   Gate = "RY"
	RZ   Gate = "RZ"
	H    Gate = "H"
	X    Gate = "X"
	Z    Gate = "Z"
	S    Gate = "S"
	Sdg  Gate = "SDG"
	CNOT Gate = "CNOT"
)

// Arity returns the number of qubits the gate acts on.
func (g Gate) Arity() int {
	if g == CNOT {
		return 2
	}
	return 1
}

// Rotation reports whether the gate takes an angle.
func (g Gate) Rotation() bool {
	return g == RX || g == RY || g == RZ
}

var qasmNames = map[Gate]string{
	RX: "rx", RY: "ry", RZ: "rz", H: "h", X: "x", Z: "z", S: "s", Sdg: "sdg", CNOT: "cx",
}

// Param is a gate angle: either a constant or a reference to a circuit
// variable.
type Param struct {
	Value    float64 `json:"value,omitempty"`
	Variable int     `json:"variable"`
}

// Const returns a fixed angle.
func Const(v float64) Param {
	return Param{Value: v, Variable: -1}
}

// Var returns a reference to variable i.
func Var(i int) Param {
	return Param{Variable: i}
}

// IsVariable reports whether p is bound at execution time.
func (p Param) IsVariable() bool {
	return p.Variable >= 0
}

// Instruction is one gate application. For CNOT, Qubits is (control, target).
type Instruction struct {
	Gate   Gate    `json:"gate"`
	Qubits []int   `json:"qubits"`
	Params []Param `json:"params,omitempty"`
}

// BoundInstruction is an Instruction with every parameter resolved.
type BoundInstruction struct {
	Gate   Gate
	Qubits []int
	Angles []float64
}

// Circuit is an ordered list of instructions over NumQubits qubits with named
// free variables.
type Circuit struct {
	NumQubits    int
	Variables    []string
	Instructions []Instruction
}

// New returns an empty circuit on n qubits.
func New(n int) *Circuit {
	return &Circuit{NumQubits: n}
}

// AddVariable registers a named variable and returns its index.
func (c *Circuit) AddVariable(name string) int {
	c.Variables = append(c.Variables, name)
	return len(c.Variables) - 1
}

// Append adds a gate. It panics on an arity mismatch or an out-of-range qubit,
// both of which are construction bugs.
func (c *Circuit) Append(g Gate, qubits []int, params ...Param) *Circuit {
	if len(qubits) != g.Arity() {
		panic(fmt.Sprintf("circuit: %s takes %d qubits, got %d", g, g.Arity(), len(qubits)))
	}
	if g.Rotation() != (len(params) == 1) {
		panic(fmt.Sprintf("circuit: %s got %d parameters", g, len(params)))
	}
	for _, q := range qubits {
		if q < 0 || q >= c.NumQubits {
			panic(fmt.Sprintf("circuit: qubit %d out of range [0,%d)", q, c.NumQubits))
		}
	}
	if g == CNOT && qubits[0] == qubits[1] {
		panic(fmt.Sprintf("circuit: CNOT control and target are both %d", qubits[0]))
	}

	c.Instructions = append(c.Instructions, Instruction{
		Gate:   g,
		Qubits: append([]int(nil), qubits...),
		Params: append([]Param(nil), params...),
	})
	return c
}

// Gate helpers.
func (c *Circuit) RY(q int, p Param) *Circuit { return c.Append(RY, []int{q}, p) }
func (c *Circuit) H(q int) *Circuit           { return c.Append(H, []int{q}) }
func (c *Circuit) CNOT(control, target int) *Circuit {
	return c.Append(CNOT, []int{control, target})
}

// Compose returns a new circuit running c and then other. Variables of other
// are appended after those of c and its references are shifted accordingly.
func (c *Circuit) Compose(other *Circuit) *Circuit {
	n := c.NumQubits
	if other.NumQubits > n {
		n = other.NumQubits
	}
	out := &Circuit{
		NumQubits:    n,
		Variables:    append(append([]string(nil), c.Variables...), other.Variables...),
		Instructions: make([]Instruction, 0, len(c.Instructions)+len(other.Instructions)),
	}
	out.Instructions = append(out.Instructions, c.Instructions...)

	shift := len(c.Variables)
	for _, inst := range other.Instructions {
		params := make([]Param, len(inst.Params))
		for i, p := range inst.Params {
			if p.IsVariable() {
				p.Variable += shift
			}
			params[i] = p
		}
		inst.Params = params
		out.Instructions = append(out.Instructions, inst)
	}
	return out
}

// NumVariables returns the number of free parameters.
func (c *Circuit) NumVariables() int {
	return len(c.Variables)
}

// NInstructions returns the number of gates.
func (c *Circuit) NInstructions() int {
	return len(c.Instructions)
}

// Depth returns the number of layers when every gate is scheduled as early as
// the gates before it on the same qubits allow.
func (c *Circuit) Depth() int {
	layer := make([]int, c.NumQubits)
	depth := 0
	for _, inst := range c.Instructions {
		l := 0
		for _, q := range inst.Qubits {
			if layer[q] > l {
				l = layer[q]
			}
		}
		l++
		for _, q := range inst.Qubits {
			layer[q] = l
		}
		if l > depth {
			depth = l
		}
	}
	return depth
}

// Bind resolves every variable reference against x.
func (c *Circuit) Bind(x []float64) ([]BoundInstruction, error) {
	if len(x) != len(c.Variables) {
		return nil, fmt.Errorf("circuit has %d variables, got %d values", len(c.Variables), len(x))
	}
	out := make([]BoundInstruction, len(c.Instructions))
	for i, inst := range c.Instructions {
		angles := make([]float64, len(inst.Params))
		for k, p := range inst.Params {
			if p.IsVariable() {
				angles[k] = x[p.Variable]
			} else {
				angles[k] = p.Value
			}
		}
		out[i] = BoundInstruction{Gate: inst.Gate, Qubits: inst.Qubits, Angles: angles}
	}
	return out, nil
}

// QASM renders the circuit bound at x as OpenQASM 2.0.
func (c *Circuit) QASM(x []float64) (string, error) {
	bound, err := c.Bind(x)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("OPENQASM 2.0;\n")
	sb.WriteString("include \"qelib1.inc\";\n\n")
	fmt.Fprintf(&sb, "qreg q[%d];\n\n", c.NumQubits)
	for _, inst := range bound {
		sb.WriteString(qasmNames[inst.Gate])
		if len(inst.Angles) > 0 {
			fmt.Fprintf(&sb, "(%s)", strconv.FormatFloat(inst.Angles[0], 'g', 17, 64))
		}
		qubits := make([]string, len(inst.Qubits))
		for i, q := range inst.Qubits {
			qubits[i] = fmt.Sprintf("q[%d]", q)
		}
		fmt.Fprintf(&sb, " %s;\n", strings.Join(qubits, ","))
	}
	return sb.String(), nil
}

// String lists the instructions with variables shown by name.
func (c *Circuit) String() string {
	var sb strings.Builder
	for _, inst := range c.Instructions {
		sb.WriteString(string(inst.Gate))
		if len(inst.Params) > 0 {
			p := inst.Params[0]
			if p.IsVariable() {
				fmt.Fprintf(&sb, "(%s)", c.Variables[p.Variable])
			} else {
				fmt.Fprintf(&sb, "(%g)", p.Value)
			}
		}
		for _, q := range inst.Qubits {
			fmt.Fprintf(&sb, " q%d", q)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
