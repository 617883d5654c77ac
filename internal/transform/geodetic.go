package transform

import "math"

// MeanEarthRadiusKm is the mean Earth radius. Geodetic heights are expressed
// as multiples of it.
const MeanEarthRadiusKm = 6371.0

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378.137              // semi-major axis (km)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

const (
	geodeticMaxIter   = 20
	geodeticTolerance = 1e-12 // radians
)

// Geodetic is a position relative to the WGS-84 ellipsoid.
type Geodetic struct {
	Latitude  float64 // radians, [-π/2, π/2]
	Longitude float64 // radians, [-π, π]
	Height    float64 // above the ellipsoid, in Earth mean radii
}

// HeightKm returns the height above the ellipsoid in kilometres.
func (g Geodetic) HeightKm() float64 {
	return g.Height * MeanEarthRadiusKm
}

// ECEFToGeodetic converts an Earth-fixed position (km) to geodetic
// coordinates by fixed-point iteration on the latitude.
func ECEFToGeodetic(r Vector) Geodetic {
	p := math.Hypot(r.X, r.Y)
	lon := wrapPi(math.Atan2(r.Y, r.X))

	lat := math.Atan2(r.Z, p)
	var n float64
	for i := 0; i < geodeticMaxIter; i++ {
		sinLat := math.Sin(lat)
		n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		next := math.Atan2(r.Z+n*wgs84E2*sinLat, p)
		done := math.Abs(next-lat) < geodeticTolerance
		lat = next
		if done {
			break
		}
	}

	sinLat := math.Sin(lat)
	n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	// cos(lat) vanishes at the poles; switch to the z-based form there.
	var h float64
	if math.Abs(lat) < math.Pi/4 {
		h = p/math.Cos(lat) - n
	} else {
		h = r.Z/sinLat - n*(1-wgs84E2)
	}

	return Geodetic{
		Latitude:  lat,
		Longitude: lon,
		Height:    h / MeanEarthRadiusKm,
	}
}

// GeodeticToECEF is the inverse of ECEFToGeodetic. Latitude and longitude
// are in radians, height in Earth mean radii.
func GeodeticToECEF(g Geodetic) Vector {
	sinLat := math.Sin(g.Latitude)
	cosLat := math.Cos(g.Latitude)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	h := g.HeightKm()

	return Vector{
		X: (n + h) * cosLat * math.Cos(g.Longitude),
		Y: (n + h) * cosLat * math.Sin(g.Longitude),
		Z: (n*(1-wgs84E2) + h) * sinLat,
	}
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// wrapPi normalizes an angle to [-π, π].
func wrapPi(a float64) float64 {
	if a >= -math.Pi && a <= math.Pi {
		return a
	}
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
