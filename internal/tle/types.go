package tle

import (
	"errors"
	"time"
)

// Validation failures reported in Diagnostic.Err. Compare with errors.Is.
var (
	ErrLineLength      = errors.New("element line must be 69 characters")
	ErrLineNumber      = errors.New("unexpected element line number")
	ErrChecksum        = errors.New("element line checksum mismatch")
	ErrCatalogMismatch = errors.New("catalog numbers of line 1 and line 2 differ")
	ErrUnsupported     = errors.New("unsupported element set")
	ErrField           = errors.New("malformed element field")
)

// Elements holds the mean orbital elements decoded from an element set.
// Angles are in degrees.
type Elements struct {
	Inclination    float64
	RAAN           float64
	Eccentricity   float64
	ArgPerigee     float64
	MeanAnomaly    float64
	MeanMotion     float64 // revolutions per day
	BStar          float64 // drag term, 1/earth radii
	RevsAtEpoch    int
	Classification byte
}

// PeriodMinutes returns the orbital period implied by the mean motion.
func (e Elements) PeriodMinutes() float64 {
	if e.MeanMotion <= 0 {
		return 0
	}
	return 1440.0 / e.MeanMotion
}

// Entry is one validated name/line1/line2 triplet. Line1 and Line2 are the
// trimmed input lines, kept verbatim.
type Entry struct {
	Index     int // triplet index in the input, 0-based
	CatalogID int
	Name      string
	Epoch     time.Time
	Line1     string
	Line2     string
	Elements  Elements
}

// Diagnostic describes a triplet that was skipped.
type Diagnostic struct {
	Index int // triplet index in the input, 0-based
	Name  string
	Line1 string
	Line2 string
	Err   error
}

func (d Diagnostic) Error() string {
	return d.Err.Error()
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// ParseResult is the output of Parse.
type ParseResult struct {
	Entries     []Entry
	Diagnostics []Diagnostic
	Lines       int // non-empty input lines
	Ignored     int // trailing lines that did not form a full triplet
}

// Triplets returns the number of complete name/line1/line2 groups seen.
func (r *ParseResult) Triplets() int {
	return r.Lines / 3
}

// EpochRange returns the span of epochs across all entries. The zero value
// is returned for an empty result.
func (r *ParseResult) EpochRange() EpochRange {
	if len(r.Entries) == 0 {
		return EpochRange{}
	}
	er := EpochRange{Min: r.Entries[0].Epoch, Max: r.Entries[0].Epoch}
	for _, e := range r.Entries[1:] {
		if e.Epoch.Before(er.Min) {
			er.Min = e.Epoch
		}
		if e.Epoch.After(er.Max) {
			er.Max = e.Epoch
		}
	}
	return er
}
