package tracker

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/star/groundtrack/internal/metrics"
	"github.com/star/groundtrack/internal/propagation"
	"github.com/star/groundtrack/internal/tle"
	"github.com/star/groundtrack/internal/trail"
)

// Handle addresses a record within its arena. Handles are stable for the
// lifetime of the arena and are not reused across reloads.
type Handle int

// Object categories, derived from the display name.
const (
	CategoryStarlink = "starlink"
	CategoryISS      = "iss"
	CategoryOther    = "other"
)

// Category groups an object by name the way the map legend does.
func Category(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "starlink"):
		return CategoryStarlink
	case strings.Contains(lower, "iss"):
		return CategoryISS
	default:
		return CategoryOther
	}
}

// Fix is a successfully propagated position.
type Fix struct {
	Latitude   float64
	Longitude  float64
	AltitudeKm float64
}

// Record is one tracked object. Everything except trail and last is fixed
// at load time; trail and last are written only by the scheduler's tick.
type Record struct {
	Name      string
	Line1     string
	Line2     string
	CatalogID int
	Epoch     time.Time
	Category  string

	orbit *propagation.Orbit
	trail *trail.Ring[trail.Point]
	last  Fix
	known bool
}

// Orbit returns the immutable SGP4 state of the record.
func (r *Record) Orbit() *propagation.Orbit { return r.orbit }

// Arena owns the records of one tracking session. It is replaced as a whole
// on reload and never edited record by record.
type Arena struct {
	records     []Record
	diagnostics []tle.Diagnostic
	ignored     int
	source      string
	loadedAt    time.Time
	generation  uint64 // set by the scheduler before the arena is published
}

// NewArena derives an orbit for every entry, drops entries SGP4 rejects
// (reported as diagnostics alongside the parse diagnostics) and keeps the
// first cfg.MaxTrackedObjects of the rest in order.
func NewArena(res *tle.ParseResult, cfg Config, logger *slog.Logger) *Arena {
	a := &Arena{
		records:     make([]Record, 0, len(res.Entries)),
		diagnostics: append([]tle.Diagnostic(nil), res.Diagnostics...),
		ignored:     res.Ignored,
	}

	var initFailures int
	for _, e := range res.Entries {
		orbit, err := propagation.NewOrbit(e)
		if err != nil {
			initFailures++
			logger.Warn("skipping element set rejected by sgp4",
				"name", e.Name,
				"catalog_id", e.CatalogID,
				"line1", e.Line1,
				"line2", e.Line2,
				"error", err,
			)
			a.diagnostics = append(a.diagnostics, tle.Diagnostic{
				Index: e.Index,
				Name:  e.Name,
				Line1: e.Line1,
				Line2: e.Line2,
				Err:   err,
			})
			continue
		}
		a.records = append(a.records, Record{
			Name:      e.Name,
			Line1:     e.Line1,
			Line2:     e.Line2,
			CatalogID: e.CatalogID,
			Epoch:     e.Epoch,
			Category:  Category(e.Name),
			orbit:     orbit,
			trail:     trail.New[trail.Point](cfg.TrailCapacity),
		})
	}

	metrics.RecordParseFailures("parse", len(res.Diagnostics))
	metrics.RecordParseFailures("init", initFailures)

	if limit := cfg.MaxTrackedObjects; limit > 0 && len(a.records) > limit {
		logger.Info("truncating tracking set",
			"available", len(a.records),
			"max_tracked_objects", limit,
		)
		a.records = a.records[:limit:limit]
	}
	return a
}

// Len returns the number of tracked records.
func (a *Arena) Len() int { return len(a.records) }

// record returns the record for h.
func (a *Arena) record(h Handle) (*Record, error) {
	if h < 0 || int(h) >= len(a.records) {
		return nil, fmt.Errorf("handle %d out of range [0, %d)", h, len(a.records))
	}
	return &a.records[h], nil
}

// Diagnostics returns the element sets that were rejected while building
// the arena, in input order within each stage.
func (a *Arena) Diagnostics() []tle.Diagnostic { return a.diagnostics }

// Ignored returns the number of trailing lines that did not form a record.
func (a *Arena) Ignored() int { return a.ignored }

// Source names where the arena's element sets came from.
func (a *Arena) Source() string { return a.source }

// Generation is the scheduler generation this arena runs under. Snapshots
// with the same generation refer to its handles.
func (a *Arena) Generation() uint64 { return a.generation }

// LoadedAt is when the arena's element sets were loaded.
func (a *Arena) LoadedAt() time.Time { return a.loadedAt }

// Objects describes the tracked records in handle order.
func (a *Arena) Objects() []ObjectInfo {
	out := make([]ObjectInfo, len(a.records))
	for i := range a.records {
		out[i] = a.info(Handle(i))
	}
	return out
}

func (a *Arena) info(h Handle) ObjectInfo {
	r := &a.records[h]
	return ObjectInfo{
		ID:        h,
		CatalogID: r.CatalogID,
		Name:      r.Name,
		Category:  r.Category,
		Epoch:     r.Epoch,
		Line1:     r.Line1,
		Line2:     r.Line2,
	}
}
