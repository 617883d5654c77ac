package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/groundtrack/internal/tle"
	"github.com/star/groundtrack/internal/transform"
)

// go-satellite's Propagate takes the Satellite by value, so SGP4 error codes
// raised during propagation never reach the caller. Failures are detected
// from the output instead: NaN/Inf components or an implausible radius.

const (
	// minRadiusKm is below any surviving orbit; a smaller radius means the
	// model has decayed the object into the atmosphere.
	minRadiusKm = 6200.0
	// maxRadiusKm is far beyond any Earth-orbiting element set.
	maxRadiusKm = 500000.0
)

// Orbit is the SGP4 state derived once from an element set. It is never
// mutated after NewOrbit returns and is safe for concurrent use.
type Orbit struct {
	sat       satellite.Satellite
	catalogID int
	name      string
	epoch     time.Time
}

// NewOrbit initialises SGP4 for entry using WGS-72 constants, the ones
// element sets are fitted with.
//
// The lines are re-checked before they reach go-satellite, which calls
// log.Fatal on fields it cannot parse.
func NewOrbit(entry tle.Entry) (*Orbit, error) {
	if err := validateLines(entry.Line1, entry.Line2); err != nil {
		return nil, fmt.Errorf("invalid element set for %d: %w", entry.CatalogID, err)
	}

	sat := satellite.TLEToSat(entry.Line1, entry.Line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: catalog %d: code=%d %s", ErrInit, entry.CatalogID, sat.Error, sat.ErrorStr)
	}
	return &Orbit{
		sat:       sat,
		catalogID: entry.CatalogID,
		name:      entry.Name,
		epoch:     entry.Epoch,
	}, nil
}

// validateLines is the last line of defence for entries that did not come
// out of tle.Parse.
func validateLines(line1, line2 string) error {
	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if !strings.HasPrefix(line1, "1 ") {
		return fmt.Errorf("line1 must start with '1 '")
	}
	if !strings.HasPrefix(line2, "2 ") {
		return fmt.Errorf("line2 must start with '2 '")
	}
	return nil
}

// CatalogID returns the catalog number of the element set.
func (o *Orbit) CatalogID() int { return o.catalogID }

// Epoch returns the element set epoch.
func (o *Orbit) Epoch() time.Time { return o.epoch }

// TEME evaluates SGP4 at t and returns the position in kilometres. The
// library resolves time to whole seconds; t is truncated accordingly.
func (o *Orbit) TEME(t time.Time) (transform.Vector, error) {
	t = t.UTC()
	pos, _ := satellite.Propagate(o.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	r := transform.Vector{X: pos.X, Y: pos.Y, Z: pos.Z}
	if !r.Finite() {
		return transform.Vector{}, fmt.Errorf("%w: catalog %d: output is NaN/Inf", ErrDiverged, o.catalogID)
	}

	mag := r.Norm()
	switch {
	case mag < minRadiusKm:
		return transform.Vector{}, fmt.Errorf("%w: catalog %d: radius %.1f km", ErrDecayed, o.catalogID, mag)
	case mag > maxRadiusKm:
		return transform.Vector{}, fmt.Errorf("%w: catalog %d: radius %.1f km", ErrDiverged, o.catalogID, mag)
	}
	return r, nil
}

// Propagate returns the geodetic position of the object at t.
func (o *Orbit) Propagate(t time.Time) (Position, error) {
	t = t.UTC().Truncate(time.Second)

	teme, err := o.TEME(t)
	if err != nil {
		return Position{}, err
	}

	ecef := transform.TEMEToECEF(teme, transform.GMST(t))
	geo := transform.ECEFToGeodetic(ecef)

	pos := Position{
		Latitude:   transform.Degrees(geo.Latitude),
		Longitude:  transform.Degrees(geo.Longitude),
		AltitudeKm: geo.HeightKm(),
	}
	if math.IsNaN(pos.Latitude) || math.IsNaN(pos.Longitude) || math.IsNaN(pos.AltitudeKm) {
		return Position{}, fmt.Errorf("%w: catalog %d: geodetic conversion", ErrDiverged, o.catalogID)
	}
	return pos, nil
}

// Propagate is the engine-facing form of Orbit.Propagate: any failure is
// reported as ok == false and the caller skips the object for this tick.
func Propagate(o *Orbit, t time.Time) (Position, bool) {
	if o == nil {
		return Position{}, false
	}
	pos, err := o.Propagate(t)
	if err != nil {
		return Position{}, false
	}
	return pos, true
}
