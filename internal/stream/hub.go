package stream

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/star/groundtrack/internal/metrics"
	"github.com/star/groundtrack/internal/tracker"
)

// Frame is one published snapshot with its wire encodings computed at most
// once, however many clients receive it.
type Frame struct {
	Snapshot *tracker.Snapshot

	full    lazyJSON
	noTrail lazyJSON
}

type lazyJSON struct {
	once sync.Once
	data []byte
	err  error
}

func (l *lazyJSON) get(v func() any) ([]byte, error) {
	l.once.Do(func() {
		l.data, l.err = json.Marshal(v())
	})
	return l.data, l.err
}

// NewFrame wraps s for delivery.
func NewFrame(s *tracker.Snapshot) *Frame {
	return &Frame{Snapshot: s}
}

// JSON returns the snapshot message, optionally without trails.
func (f *Frame) JSON(withTrail bool) ([]byte, error) {
	if withTrail {
		return f.full.get(func() any {
			return snapshotMessage{Type: "snapshot", Snapshot: f.Snapshot}
		})
	}
	return f.noTrail.get(func() any {
		s := *f.Snapshot
		s.Objects = make([]tracker.ObjectSnapshot, len(f.Snapshot.Objects))
		for i, o := range f.Snapshot.Objects {
			o.Trail = nil
			s.Objects[i] = o
		}
		return snapshotMessage{Type: "snapshot", Snapshot: &s}
	})
}

// after reports whether f is newer than the (generation, tick) position.
func (f *Frame) after(gen, tick uint64) bool {
	s := f.Snapshot
	return s.Generation > gen || (s.Generation == gen && s.Tick > tick)
}

type snapshotMessage struct {
	Type string `json:"type"`
	*tracker.Snapshot
}

// Subscription receives frames from a Hub until Close is called.
type Subscription struct {
	C <-chan *Frame

	ch  chan *Frame
	hub *Hub
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
}

// Hub fans snapshots out to stream clients. Publish never blocks: when a
// subscriber's buffer is full its oldest pending frame is discarded so the
// client always catches up to the newest positions.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub creates a hub whose subscribers buffer up to buffer frames.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan *Frame, h.buffer)
	s := &Subscription{C: ch, ch: ch, hub: h}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish implements tracker.Sink.
func (h *Hub) Publish(s *tracker.Snapshot) {
	f := NewFrame(s)

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- f:
			continue
		default:
		}

		// Full: drop the oldest frame and retry once.
		select {
		case <-sub.ch:
			metrics.RecordStreamDropped()
			h.logger.Debug("stream subscriber behind, dropped oldest frame",
				"generation", s.Generation,
				"tick", s.Tick,
			)
		default:
		}
		select {
		case sub.ch <- f:
		default:
			metrics.RecordStreamDropped()
		}
	}
}
