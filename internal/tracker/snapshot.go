package tracker

import (
	"time"

	"github.com/star/groundtrack/internal/trail"
)

// Snapshot is the immutable result of one tick. Consumers may hold on to it
// indefinitely; the scheduler never touches a snapshot after emitting it.
type Snapshot struct {
	// Generation increments every time the tracking set is replaced.
	Generation uint64 `json:"generation" msgpack:"generation"`
	// Tick counts from zero within a generation.
	Tick    uint64           `json:"tick" msgpack:"tick"`
	Time    time.Time        `json:"time" msgpack:"time"`
	Tracked int              `json:"tracked" msgpack:"tracked"`
	Failed  int              `json:"failed" msgpack:"failed"`
	Objects []ObjectSnapshot `json:"objects" msgpack:"objects"`
}

// ObjectSnapshot is one successfully propagated object within a Snapshot.
type ObjectSnapshot struct {
	ID         Handle        `json:"id" msgpack:"id"`
	CatalogID  int           `json:"catalog_id" msgpack:"catalog_id"`
	Name       string        `json:"name" msgpack:"name"`
	Category   string        `json:"category" msgpack:"category"`
	Latitude   float64       `json:"latitude" msgpack:"latitude"`
	Longitude  float64       `json:"longitude" msgpack:"longitude"`
	AltitudeKm float64       `json:"altitude_km" msgpack:"altitude_km"`
	Trail      []trail.Point `json:"trail" msgpack:"trail"`
}

// Object returns the entry for h, if h was positioned in this snapshot.
func (s *Snapshot) Object(h Handle) (ObjectSnapshot, bool) {
	for _, o := range s.Objects {
		if o.ID == h {
			return o, true
		}
	}
	return ObjectSnapshot{}, false
}

// ObjectInfo describes a tracked record independent of any tick.
type ObjectInfo struct {
	ID        Handle    `json:"id"`
	CatalogID int       `json:"catalog_id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Epoch     time.Time `json:"epoch"`
	Line1     string    `json:"line1"`
	Line2     string    `json:"line2"`
}
