// Package chromophore holds the per-site spectroscopic data of a chromophore
// aggregate and the neighbor topology that couples the sites.
package chromophore

import (
	"math"
)

// Unit conversions applied by ToAtomicUnits.
const (
	AngstromToBohr = 1.8897161646320724
	DebyeToAU      = 0.393430307
)

// Vec3 is a Cartesian 3-vector.
type Vec3 [3]float64

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

// Scale returns s * v.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{s * v[0], s * v[1], s * v[2]}
}

// Dot returns the scalar product of v and w.
func (v Vec3) Dot(w Vec3) float64 {
	return v[0]*w[0] + v[1]*w[1] + v[2]*w[2]
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Site is the two-level description of one chromophore.
// Energies are in Hartree. Positions and the ground/excited dipoles are in the
// units of the data source until ToAtomicUnits is applied; the transition
// dipole is always in atomic units.
type Site struct {
	GroundEnergy     float64 `json:"ground_energy" msgpack:"ground_energy"`
	ExcitedEnergy    float64 `json:"excited_energy" msgpack:"excited_energy"`
	CenterOfMass     Vec3    `json:"center_of_mass" msgpack:"center_of_mass"`
	GroundDipole     Vec3    `json:"ground_dipole" msgpack:"ground_dipole"`
	ExcitedDipole    Vec3    `json:"excited_dipole" msgpack:"excited_dipole"`
	TransitionDipole Vec3    `json:"transition_dipole" msgpack:"transition_dipole"`
}

// DipoleSum returns (mu_gs + mu_es) / 2.
func (s Site) DipoleSum() Vec3 {
	return s.GroundDipole.Add(s.ExcitedDipole).Scale(0.5)
}

// DipoleDiff returns (mu_gs - mu_es) / 2.
func (s Site) DipoleDiff() Vec3 {
	return s.GroundDipole.Sub(s.ExcitedDipole).Scale(0.5)
}

// ToAtomicUnits converts positions from angstrom to bohr and the ground and
// excited dipoles from debye to atomic units. The input is not modified.
func ToAtomicUnits(sites []Site) []Site {
	out := make([]Site, len(sites))
	for i, s := range sites {
		s.CenterOfMass = s.CenterOfMass.Scale(AngstromToBohr)
		s.GroundDipole = s.GroundDipole.Scale(DebyeToAU)
		s.ExcitedDipole = s.ExcitedDipole.Scale(DebyeToAU)
		out[i] = s
	}
	return out
}
