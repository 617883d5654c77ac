package tracker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/star/groundtrack/internal/metrics"
	"github.com/star/groundtrack/internal/propagation"
	"github.com/star/groundtrack/internal/tracing"
	"github.com/star/groundtrack/internal/trail"
)

// Clock abstracts wall time so ticks can be driven deterministically.
type Clock interface {
	Now() time.Time
	// After delivers once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// SteppedClock is simulated time for offline runs. After moves the clock
// forward by d and fires at once, so ticks follow each other as fast as
// they can be evaluated.
type SteppedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewSteppedClock returns a clock reading start.
func NewSteppedClock(start time.Time) *SteppedClock {
	return &SteppedClock{now: start}
}

func (c *SteppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *SteppedClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	t := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- t
	return ch
}

// Propagator evaluates an orbit at a time. ok == false means no position is
// available for this tick.
type Propagator interface {
	Propagate(o *propagation.Orbit, t time.Time) (propagation.Position, bool)
}

// PropagatorFunc adapts a function to Propagator.
type PropagatorFunc func(o *propagation.Orbit, t time.Time) (propagation.Position, bool)

func (f PropagatorFunc) Propagate(o *propagation.Orbit, t time.Time) (propagation.Position, bool) {
	return f(o, t)
}

// SGP4 is the production propagator.
var SGP4 Propagator = PropagatorFunc(propagation.Propagate)

// Sink receives every emitted snapshot. Publish is called from the tick
// and must not block.
type Sink interface {
	Publish(s *Snapshot)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithPropagator overrides SGP4.
func WithPropagator(p Propagator) Option {
	return func(s *Scheduler) { s.prop = p }
}

// WithSink registers the snapshot consumer.
func WithSink(sink Sink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler runs the fixed-rate tracking loop. The goroutine executing Run
// is the only writer of the arena; everyone else reads snapshots.
type Scheduler struct {
	cfg    Config
	clock  Clock
	prop   Propagator
	sink   Sink
	logger *slog.Logger

	arena      *Arena
	start      time.Time
	tick       uint64
	generation uint64

	current atomic.Pointer[Arena]
	latest  atomic.Pointer[Snapshot]
	replace chan *Arena
}

// New creates a scheduler for arena. Construction time is the time of
// tick 0.
func New(arena *Arena, cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:     cfg,
		clock:   SystemClock,
		prop:    SGP4,
		logger:  slog.Default(),
		arena:   arena,
		replace: make(chan *Arena),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.clock.Now()
	s.current.Store(arena)
	return s, nil
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Latest returns the most recent snapshot, or nil before tick 0.
func (s *Scheduler) Latest() *Snapshot { return s.latest.Load() }

// Arena returns the active arena. Callers may only use its load-time
// accessors (Objects, Diagnostics, Source, LoadedAt, Len).
func (s *Scheduler) Arena() *Arena { return s.current.Load() }

// Run performs tick 0 at construction time, then ticks every TickInterval
// until ctx is cancelled. A tick in progress always completes before Run
// returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.step(ctx, s.start)
	next := s.start.Add(s.cfg.TickInterval)

	for {
		wait := next.Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			s.logger.Info("tracking loop stopped", "ticks", s.tick, "generation", s.generation)
			return nil

		case a := <-s.replace:
			now := s.clock.Now()
			s.swap(a)
			s.step(ctx, now)
			next = now.Add(s.cfg.TickInterval)

		case <-s.clock.After(wait):
			now := s.clock.Now()
			s.step(ctx, now)
			next = next.Add(s.cfg.TickInterval)
			if next.Before(now) {
				// Fell behind by more than a whole interval; skip the
				// missed ticks instead of bursting through them.
				next = now.Add(s.cfg.TickInterval)
			}
		}
	}
}

// Replace hands a new arena to the run loop. It blocks until the loop has
// accepted it or ctx ends.
func (s *Scheduler) Replace(ctx context.Context, a *Arena) error {
	select {
	case s.replace <- a:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) swap(a *Arena) {
	s.logger.Info("tracking set replaced",
		"previous", s.arena.Len(),
		"tracked", a.Len(),
		"source", a.Source(),
	)
	s.tick = 0
	s.generation++
	a.generation = s.generation
	s.arena = a
	s.current.Store(a)
}

// step runs one tick and publishes its snapshot.
func (s *Scheduler) step(ctx context.Context, now time.Time) {
	_, span := tracing.Start(ctx, "tracker.tick",
		attribute.Int64("tick", int64(s.tick)),
		attribute.Int("tracked", s.arena.Len()),
	)
	defer span.End()

	started := time.Now()
	snap := s.evaluate(now)
	elapsed := time.Since(started)

	span.SetAttributes(attribute.Int("failed", snap.Failed))
	metrics.RecordTick(elapsed, snap.Tracked, len(snap.Objects), snap.Failed)

	s.latest.Store(snap)
	if s.sink != nil {
		s.sink.Publish(snap)
	}
	s.tick++
}

// evaluate propagates every record at now. A failing object is left out of
// this snapshot only; its trail and last position are untouched.
func (s *Scheduler) evaluate(now time.Time) *Snapshot {
	records := s.arena.records
	snap := &Snapshot{
		Generation: s.generation,
		Tick:       s.tick,
		Time:       now,
		Tracked:    len(records),
		Objects:    make([]ObjectSnapshot, 0, len(records)),
	}

	for i := range records {
		r := &records[i]
		pos, ok := s.prop.Propagate(r.orbit, now)
		if !ok {
			snap.Failed++
			s.logger.Debug("propagation failed",
				"name", r.Name,
				"catalog_id", r.CatalogID,
				"tick", s.tick,
			)
			continue
		}

		r.last = Fix{Latitude: pos.Latitude, Longitude: pos.Longitude, AltitudeKm: pos.AltitudeKm}
		r.known = true
		r.trail.Add(trail.Point{Lat: pos.Latitude, Lon: pos.Longitude})

		snap.Objects = append(snap.Objects, ObjectSnapshot{
			ID:         Handle(i),
			CatalogID:  r.CatalogID,
			Name:       r.Name,
			Category:   r.Category,
			Latitude:   pos.Latitude,
			Longitude:  pos.Longitude,
			AltitudeKm: pos.AltitudeKm,
			Trail:      r.trail.Values(),
		})
	}
	return snap
}
