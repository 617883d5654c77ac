package transform

import (
	"math"
	"time"
)

const (
	// Julian Dates of the J2000.0 epoch and of the Unix epoch.
	jdJ2000 = 2451545.0
	jdUnix  = 2440587.5

	secondsPerDay = 86400.0
)

// JulianDate returns the Julian Date of t, counting days from the Unix epoch
// so no calendar arithmetic is needed.
func JulianDate(t time.Time) float64 {
	days := float64(t.Unix())/secondsPerDay + float64(t.Nanosecond())/(1e9*secondsPerDay)
	return jdUnix + days
}

// GMST is the IAU-82 Greenwich mean sidereal angle in radians, in [0, 2π).
// t is taken to the whole second, the resolution positions are propagated
// at, so the rotation always matches the SGP4 state it is applied to. UT1
// is approximated by UTC.
func GMST(t time.Time) float64 {
	t = t.UTC().Truncate(time.Second)
	c := (JulianDate(t) - jdJ2000) / 36525.0 // Julian centuries since J2000

	// Vallado eq. 3-47, seconds of time.
	sec := 67310.54841 + (876600*3600+8640184.812866)*c + 0.093104*c*c - 6.2e-6*c*c*c

	sec = math.Mod(sec, secondsPerDay)
	if sec < 0 {
		sec += secondsPerDay
	}
	return sec / secondsPerDay * 2 * math.Pi
}
