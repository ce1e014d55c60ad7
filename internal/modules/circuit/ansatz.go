package circuit

import "fmt"

// ParamsPerBlock is the number of trainable angles in one entangling block.
const ParamsPerBlock = 4

// StatePreparation builds the circuit that prepares the reference state
// encoded by angles (see EncodeAngles) from |0...0>.
//
// A pump rotation on qubit 0 is followed by one controlled-Y block per qubit
// i >= 1, RY(-a) H CNOT(i-1, i) H RY(a) on qubit i, which turns the register
// into the thermometer superposition sum_k c[k] |1...1 0...0> with k leading
// ones. A wall of CNOTs then maps the thermometer state with k ones onto the
// single excitation of qubit k-1.
//
// Rotations follow RY(t) = exp(-i t Y / 2), so the pump angle is doubled and
// the block angles are used as given.
func StatePreparation(angles []float64) *Circuit {
	n := len(angles)
	c := New(n)
	if n == 0 {
		return c
	}

	c.RY(0, Const(2*angles[0]))

	for i := 1; i < n; i++ {
		control, target := i-1, i
		c.RY(target, Const(-angles[i]))
		c.H(target)
		c.CNOT(control, target)
		c.H(target)
		c.RY(target, Const(angles[i]))
	}

	for i := n - 2; i >= 0; i-- {
		for j := n - 1; j > i; j-- {
			c.CNOT(j, i)
		}
	}
	return c
}

// Entangler builds the trainable circuit shared by every reference state: one
// RY per qubit, then a brick wall of entangling blocks on (i, i+1) for even i
// followed by odd i. A cyclic register gets one more block on (n-1, 0).
//
//	control --RY(a)--o--RY(c)--o--RY(e)--
//	                 |         |
//	target  --RY(b)--x--RY(d)--x--RY(f)--
//
// The leading RY pair of each block is omitted since the single-qubit layer
// already provides it.
func Entangler(n int, cyclic bool) *Circuit {
	c := New(n)
	for q := 0; q < n; q++ {
		c.RY(q, Var(c.AddVariable(varName(c))))
	}

	for layer := 0; layer < 2; layer++ {
		for i := layer; i+1 < n; i += 2 {
			entanglingBlock(c, i, i+1)
		}
	}
	if cyclic && n > 1 {
		entanglingBlock(c, n-1, 0)
	}
	return c
}

// EntanglerParameterCount returns the number of variables of Entangler(n, cyclic).
func EntanglerParameterCount(n int, cyclic bool) int {
	if n <= 0 {
		return 0
	}
	blocks := n/2 + (n-1)/2
	if cyclic && n > 1 {
		blocks++
	}
	return n + ParamsPerBlock*blocks
}

func entanglingBlock(c *Circuit, control, target int) {
	c.CNOT(control, target)
	c.RY(control, Var(c.AddVariable(varName(c))))
	c.RY(target, Var(c.AddVariable(varName(c))))
	c.CNOT(control, target)
	c.RY(control, Var(c.AddVariable(varName(c))))
	c.RY(target, Var(c.AddVariable(varName(c))))
}

func varName(c *Circuit) string {
	return fmt.Sprintf("x%d", c.NumVariables())
}
