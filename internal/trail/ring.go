// Package trail holds the bounded history of recent positions kept for
// each tracked object.
package trail

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Point is one ground-track sample in degrees.
type Point struct {
	Lat float64 `msgpack:"lat"`
	Lon float64 `msgpack:"lon"`
}

// MarshalJSON encodes a point as [lat, lon], the shape map polylines take.
func (p Point) MarshalJSON() ([]byte, error) {
	b := make([]byte, 0, 48)
	b = append(b, '[')
	b = strconv.AppendFloat(b, p.Lat, 'f', -1, 64)
	b = append(b, ',')
	b = strconv.AppendFloat(b, p.Lon, 'f', -1, 64)
	return append(b, ']'), nil
}

// UnmarshalJSON accepts the [lat, lon] form written by MarshalJSON.
func (p *Point) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("trail point: want [lat, lon], got %d values", len(pair))
	}
	p.Lat, p.Lon = pair[0], pair[1]
	return nil
}

// Ring stores no more than a fixed number of values. Once full, each Add
// overwrites the oldest value. Add is the only mutator.
type Ring[V any] struct {
	entries []V
	max     int
	next    int // slot the next Add writes once the ring is full
}

// New returns an empty ring holding at most capacity values. A capacity
// below one is treated as one.
func New[V any](capacity int) *Ring[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[V]{entries: make([]V, 0, capacity), max: capacity}
}

// Add appends v, evicting the oldest value when the ring is full.
func (r *Ring[V]) Add(v V) {
	if len(r.entries) < r.max {
		r.entries = append(r.entries, v)
		return
	}
	r.entries[r.next] = v
	r.next = (r.next + 1) % r.max
}

func (r *Ring[V]) Len() int { return len(r.entries) }

func (r *Ring[V]) Cap() int { return r.max }

// Get returns the i-th value where 0 is the oldest and Len()-1 the newest.
// Like slice indexing, it panics unless 0 <= i < Len().
func (r *Ring[V]) Get(i int) V {
	if i < 0 || i >= len(r.entries) {
		panic(fmt.Sprintf("trail: index %d out of range [0:%d]", i, len(r.entries)))
	}
	return r.entries[(r.next+i)%len(r.entries)]
}

// Values returns a copy of the contents, oldest first.
func (r *Ring[V]) Values() []V {
	out := make([]V, len(r.entries))
	n := copy(out, r.entries[r.next:])
	copy(out[n:], r.entries[:r.next])
	return out
}
