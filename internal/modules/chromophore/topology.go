package chromophore

// Topology describes which sites are coupled: a linear chain or a ring.
type Topology struct {
	N      int
	Cyclic bool
}

// Neighbors returns the coupled neighbors of site a in ascending order.
// A linear chain couples a-1 and a+1 when they exist; a ring wraps around.
// Duplicates are removed, so a two-site ring has a single neighbor per site.
func (t Topology) Neighbors(a int) []int {
	if t.N < 2 || a < 0 || a >= t.N {
		return nil
	}

	candidates := make([]int, 0, 2)
	switch {
	case a > 0:
		candidates = append(candidates, a-1)
	case t.Cyclic:
		candidates = append(candidates, t.N-1)
	}
	switch {
	case a < t.N-1:
		candidates = append(candidates, a+1)
	case t.Cyclic:
		candidates = append(candidates, 0)
	}

	out := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if c == a || contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 2 && out[0] > out[1] {
		out[0], out[1] = out[1], out[0]
	}
	return out
}

// Pairs returns every coupled pair once, as (a, b) with a < b.
func (t Topology) Pairs() [][2]int {
	var pairs [][2]int
	for a := 0; a < t.N; a++ {
		for _, b := range t.Neighbors(a) {
			if a < b {
				pairs = append(pairs, [2]int{a, b})
			}
		}
	}
	return pairs
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
