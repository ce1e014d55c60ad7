package testing

import (
	"fmt"
	"strings"

	"github.com/aristath/mcvqe/internal/modules/chromophore"
)

// NewSiteFixtures returns n chromophore records in data-file units
// (hartree, angstrom, debye; transition dipole in a.u.). Sites sit roughly
// 5.5 angstrom apart along x so neighbors couple weakly but measurably.
func NewSiteFixtures(n int) []chromophore.Site {
	sites := make([]chromophore.Site, n)
	for a := range sites {
		fa := float64(a)
		sites[a] = chromophore.Site{
			GroundEnergy:     -1.0 - 0.01*fa,
			ExcitedEnergy:    -0.85 + 0.015*fa,
			CenterOfMass:     chromophore.Vec3{5.5 * fa, 0.3 * fa, 0.1},
			GroundDipole:     chromophore.Vec3{0.8, -0.25 * fa, 0.5},
			ExcitedDipole:    chromophore.Vec3{-0.5, 1.2, 0.12 * fa},
			TransitionDipole: chromophore.Vec3{0.2 * fa, 0.9, -0.4},
		}
	}
	return sites
}

// SiteFileText renders sites in the eight-line data file format read by
// chromophore.Load.
func SiteFileText(sites []chromophore.Site) string {
	var sb strings.Builder
	vec := func(v chromophore.Vec3) string {
		return fmt.Sprintf("%.17g,%.17g,%.17g", v[0], v[1], v[2])
	}
	for a, s := range sites {
		fmt.Fprintf(&sb, "chromophore %d\n", a+1)
		fmt.Fprintf(&sb, "Ground state energy: %.17g\n", s.GroundEnergy)
		fmt.Fprintf(&sb, "Excited state energy: %.17g\n", s.ExcitedEnergy)
		fmt.Fprintf(&sb, "Center of mass: %s\n", vec(s.CenterOfMass))
		fmt.Fprintf(&sb, "Ground state dipole: %s\n", vec(s.GroundDipole))
		fmt.Fprintf(&sb, "Excited state dipole: %s\n", vec(s.ExcitedDipole))
		fmt.Fprintf(&sb, "Transition dipole: %s\n", vec(s.TransitionDipole))
		sb.WriteString("\n")
	}
	return sb.String()
}
