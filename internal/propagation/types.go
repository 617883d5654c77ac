package propagation

import "errors"

var (
	// ErrInit is returned when SGP4 rejects an element set at initialisation.
	ErrInit = errors.New("sgp4 initialisation failed")
	// ErrDecayed is returned when the propagated radius is inside the atmosphere.
	ErrDecayed = errors.New("orbit decayed")
	// ErrDiverged is returned when SGP4 produces non-finite or runaway output.
	ErrDiverged = errors.New("propagation diverged")
)

// Position is a geodetic fix.
type Position struct {
	Latitude   float64 // degrees, [-90, 90]
	Longitude  float64 // degrees, [-180, 180]
	AltitudeKm float64 // above the WGS-84 ellipsoid
}
