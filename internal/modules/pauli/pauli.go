// Package pauli provides sums of weighted Pauli strings, the observable type
// evaluated by the backends.
package pauli

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Axis names a single-qubit Pauli operator.
type Axis byte

// Supported axes. The identity is implicit: a site absent from a term is I.
const (
	X Axis = 'X'
	Y Axis = 'Y'
	Z Axis = 'Z'
)

// Op is a Pauli operator acting on one site.
type Op struct {
	Site int  `json:"site" msgpack:"site"`
	Axis Axis `json:"axis" msgpack:"axis"`
}

// OnX, OnY and OnZ build single-site operators.
func OnX(site int) Op { return Op{Site: site, Axis: X} }
func OnY(site int) Op { return Op{Site: site, Axis: Y} }
func OnZ(site int) Op { return Op{Site: site, Axis: Z} }

func (o Op) String() string {
	return fmt.Sprintf("%c%d", o.Axis, o.Site)
}

// Term is a Pauli string with a real coefficient. Ops are sorted by site and
// carry at most one operator per site.
type Term struct {
	Ops   []Op    `json:"ops" msgpack:"ops"`
	Coeff float64 `json:"coeff" msgpack:"coeff"`
}

// Key is the canonical label of the Pauli string, e.g. "X0 Z1".
func (t Term) Key() string {
	parts := make([]string, len(t.Ops))
	for i, op := range t.Ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, " ")
}

// Sum is a real linear combination of Pauli strings plus a scalar offset.
// The zero value is an empty sum ready for use. A Sum is not safe for
// concurrent mutation; once built it may be read from many goroutines.
type Sum struct {
	Offset float64
	terms  map[string]Term
}

// NewSum returns an empty sum.
func NewSum() *Sum {
	return &Sum{terms: make(map[string]Term)}
}

// Add accumulates coeff * ops into the sum. Operators are sorted by site and a
// repeated site with the same axis cancels to the identity. An empty string
// (after cancellation) is added to the offset.
//
// Add panics when one site carries two different axes, since the product
// would carry an imaginary phase.
func (s *Sum) Add(coeff float64, ops ...Op) {
	canon, err := canonicalize(ops)
	if err != nil {
		panic(err)
	}
	if len(canon) == 0 {
		s.Offset += coeff
		return
	}
	if s.terms == nil {
		s.terms = make(map[string]Term)
	}

	t := Term{Ops: canon}
	key := t.Key()
	if existing, ok := s.terms[key]; ok {
		existing.Coeff += coeff
		s.terms[key] = existing
		return
	}
	t.Coeff = coeff
	s.terms[key] = t
}

// AddSum accumulates every term of other into s.
func (s *Sum) AddSum(other *Sum) {
	s.Offset += other.Offset
	for _, t := range other.terms {
		s.Add(t.Coeff, t.Ops...)
	}
}

// Compact removes terms whose coefficient is exactly zero.
func (s *Sum) Compact() {
	for key, t := range s.terms {
		if t.Coeff == 0 {
			delete(s.terms, key)
		}
	}
}

// NumTerms returns the number of Pauli strings, excluding the offset.
func (s *Sum) NumTerms() int {
	return len(s.terms)
}

// Terms returns the Pauli strings ordered by weight and then by label.
func (s *Sum) Terms() []Term {
	out := make([]Term, 0, len(s.terms))
	for _, t := range s.terms {
		ops := make([]Op, len(t.Ops))
		copy(ops, t.Ops)
		out = append(out, Term{Ops: ops, Coeff: t.Coeff})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Ops) != len(out[j].Ops) {
			return len(out[i].Ops) < len(out[j].Ops)
		}
		return less(out[i].Ops, out[j].Ops)
	})
	return out
}

// Coefficient returns the coefficient of the string described by ops, or
// zero when the sum does not contain it.
func (s *Sum) Coefficient(ops ...Op) float64 {
	canon, err := canonicalize(ops)
	if err != nil {
		return 0
	}
	if len(canon) == 0 {
		return s.Offset
	}
	return s.terms[Term{Ops: canon}.Key()].Coeff
}

// MaxSite returns the highest site index used, or -1 for a scalar sum.
func (s *Sum) MaxSite() int {
	highest := -1
	for _, t := range s.terms {
		if last := t.Ops[len(t.Ops)-1].Site; last > highest {
			highest = last
		}
	}
	return highest
}

// IsFinite reports whether the offset and every coefficient are finite.
func (s *Sum) IsFinite() bool {
	if math.IsNaN(s.Offset) || math.IsInf(s.Offset, 0) {
		return false
	}
	for _, t := range s.terms {
		if math.IsNaN(t.Coeff) || math.IsInf(t.Coeff, 0) {
			return false
		}
	}
	return true
}

// Equal reports whether s and other agree on every coefficient within tol.
func (s *Sum) Equal(other *Sum, tol float64) bool {
	if math.Abs(s.Offset-other.Offset) > tol {
		return false
	}
	for key, t := range s.terms {
		if math.Abs(t.Coeff-other.terms[key].Coeff) > tol {
			return false
		}
	}
	for key, t := range other.terms {
		if _, ok := s.terms[key]; !ok && math.Abs(t.Coeff) > tol {
			return false
		}
	}
	return true
}

// String renders the sum as "c0 + c1 X0 Z1 + ..." in Terms order.
func (s *Sum) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%.12g", s.Offset)
	for _, t := range s.Terms() {
		fmt.Fprintf(&b, " + %.12g %s", t.Coeff, t.Key())
	}
	return b.String()
}

func canonicalize(ops []Op) ([]Op, error) {
	sorted := make([]Op, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Site < sorted[j].Site })

	out := make([]Op, 0, len(sorted))
	for _, op := range sorted {
		if op.Site < 0 {
			return nil, fmt.Errorf("pauli: negative site %d", op.Site)
		}
		if op.Axis != X && op.Axis != Y && op.Axis != Z {
			return nil, fmt.Errorf("pauli: unknown axis %q", op.Axis)
		}
		if n := len(out); n > 0 && out[n-1].Site == op.Site {
			if out[n-1].Axis != op.Axis {
				return nil, fmt.Errorf("pauli: site %d carries %c and %c", op.Site, out[n-1].Axis, op.Axis)
			}
			out = out[:n-1]
			continue
		}
		out = append(out, op)
	}
	return out, nil
}

func less(a, b []Op) bool {
	for i := range a {
		if a[i].Site != b[i].Site {
			return a[i].Site < b[i].Site
		}
		if a[i].Axis != b[i].Axis {
			return a[i].Axis < b[i].Axis
		}
	}
	return false
}
