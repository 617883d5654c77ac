package propagation

import (
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/star/groundtrack/internal/tle"
	"github.com/star/groundtrack/internal/transform"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const elementSets = `ISS (ZARYA)
1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927
2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537
HST
1 20580U 90037B   25138.50000000  .00001310  00000+0  63926-4 0  9992
2 20580  28.4699 121.2539 0002470 101.6428 258.4469 15.27812343727317
NOAA 19
1 33591U 09005A   25138.50000000  .00000100  00000+0  79231-4 0  9995
2 33591  99.0500 190.1234 0013456 110.2345 250.0123 14.12912345842730
`

func loadEntries(t *testing.T) []tle.Entry {
	t.Helper()
	res, err := tle.Parse(strings.NewReader(elementSets), testLogger)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(res.Entries))
	}
	return res.Entries
}

func TestPropagateAtEpoch(t *testing.T) {
	entries := loadEntries(t)

	tests := []struct {
		name           string
		entry          tle.Entry
		minAlt, maxAlt float64
		maxAbsLat      float64
	}{
		{"ISS", entries[0], 300, 450, 52.0},
		{"HST", entries[1], 450, 600, 28.7},
		{"NOAA 19", entries[2], 780, 920, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orbit, err := NewOrbit(tt.entry)
			if err != nil {
				t.Fatalf("NewOrbit: %v", err)
			}

			for _, offset := range []time.Duration{0, 17 * time.Minute, 45 * time.Minute, 6 * time.Hour} {
				pos, err := orbit.Propagate(tt.entry.Epoch.Add(offset))
				if err != nil {
					t.Fatalf("Propagate(+%v): %v", offset, err)
				}
				if pos.AltitudeKm < tt.minAlt || pos.AltitudeKm > tt.maxAlt {
					t.Errorf("+%v: altitude = %.1f km, want [%.0f, %.0f]", offset, pos.AltitudeKm, tt.minAlt, tt.maxAlt)
				}
				if math.Abs(pos.Latitude) > tt.maxAbsLat {
					t.Errorf("+%v: |latitude| = %.3f, want <= %.1f", offset, math.Abs(pos.Latitude), tt.maxAbsLat)
				}
				if pos.Longitude < -180 || pos.Longitude > 180 {
					t.Errorf("+%v: longitude %.3f out of range", offset, pos.Longitude)
				}
			}
		})
	}
}

// TestPropagateConsistentFrames checks that the geodetic fix maps back to
// the rotated SGP4 position.
func TestPropagateConsistentFrames(t *testing.T) {
	entry := loadEntries(t)[0]
	orbit, err := NewOrbit(entry)
	if err != nil {
		t.Fatalf("NewOrbit: %v", err)
	}

	at := entry.Epoch.Add(30 * time.Minute).Truncate(time.Second)
	teme, err := orbit.TEME(at)
	if err != nil {
		t.Fatalf("TEME: %v", err)
	}
	ecef := transform.TEMEToECEF(teme, transform.GMST(at))

	pos, err := orbit.Propagate(at)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	back := transform.GeodeticToECEF(transform.Geodetic{
		Latitude:  transform.Radians(pos.Latitude),
		Longitude: transform.Radians(pos.Longitude),
		Height:    pos.AltitudeKm / transform.MeanEarthRadiusKm,
	})

	for _, d := range []float64{back.X - ecef.X, back.Y - ecef.Y, back.Z - ecef.Z} {
		if math.Abs(d) > 1e-3 {
			t.Fatalf("round trip mismatch: got %+v, want %+v", back, ecef)
		}
	}
}

func TestPropagateDeterministic(t *testing.T) {
	entry := loadEntries(t)[1]
	a, err := NewOrbit(entry)
	if err != nil {
		t.Fatalf("NewOrbit: %v", err)
	}
	b, err := NewOrbit(entry)
	if err != nil {
		t.Fatalf("NewOrbit: %v", err)
	}

	at := time.Date(2025, 5, 18, 13, 4, 5, 0, time.UTC)
	p1, ok1 := Propagate(a, at)
	p2, ok2 := Propagate(a, at)
	p3, ok3 := Propagate(b, at)
	if !ok1 || !ok2 || !ok3 {
		t.Fatal("propagation failed")
	}
	if p1 != p2 || p1 != p3 {
		t.Errorf("non-deterministic output: %+v %+v %+v", p1, p2, p3)
	}
}

func TestPropagateSubSecondTruncated(t *testing.T) {
	entry := loadEntries(t)[0]
	orbit, err := NewOrbit(entry)
	if err != nil {
		t.Fatalf("NewOrbit: %v", err)
	}

	at := entry.Epoch.Add(time.Hour).Truncate(time.Second)
	p1, ok1 := Propagate(orbit, at)
	p2, ok2 := Propagate(orbit, at.Add(400*time.Millisecond))
	if !ok1 || !ok2 {
		t.Fatal("propagation failed")
	}
	if p1 != p2 {
		t.Errorf("sub-second offset changed output: %+v vs %+v", p1, p2)
	}
}

func TestNewOrbitInvalid(t *testing.T) {
	_, err := NewOrbit(tle.Entry{CatalogID: 99999, Line1: "invalid line 1", Line2: "invalid line 2"})
	if err == nil {
		t.Fatal("expected error for invalid element set, got nil")
	}
}

func TestPropagateNilOrbit(t *testing.T) {
	if _, ok := Propagate(nil, time.Now()); ok {
		t.Error("expected ok == false for nil orbit")
	}
}

func TestOrbitAccessors(t *testing.T) {
	entry := loadEntries(t)[2]
	orbit, err := NewOrbit(entry)
	if err != nil {
		t.Fatalf("NewOrbit: %v", err)
	}
	if orbit.CatalogID() != 33591 {
		t.Errorf("CatalogID = %d, want 33591", orbit.CatalogID())
	}
	if !orbit.Epoch().Equal(entry.Epoch) {
		t.Errorf("Epoch = %v, want %v", orbit.Epoch(), entry.Epoch)
	}
}
