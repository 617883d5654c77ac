// Package transform provides the coordinate conversions between the SGP4
// output frame and geographic coordinates.
//
// SGP4 produces positions in TEME (True Equator Mean Equinox). Rotating by
// Greenwich mean sidereal time gives an Earth-fixed position (PEF, used here
// as ECEF), which is then converted to geodetic latitude, longitude and
// height on the WGS-84 ellipsoid. Polar motion and the equation of the
// equinoxes are ignored; the resulting error is tens of metres, well below
// what a ground track needs.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import "math"

// Vector is a Cartesian position in kilometres.
type Vector struct {
	X, Y, Z float64
}

// Norm returns the vector magnitude.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Finite reports whether every component is a finite number.
func (v Vector) Finite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// TEMEToECEF rotates a TEME position into the Earth-fixed frame using a
// GMST angle in radians: r_ECEF = R3(θ) * r_TEME.
func TEMEToECEF(r Vector, gmst float64) Vector {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	return Vector{
		X: r.X*cosG + r.Y*sinG,
		Y: -r.X*sinG + r.Y*cosG,
		Z: r.Z,
	}
}
