// Package stream pushes tracker snapshots to browsers over Server-Sent
// Events (GET /api/v1/stream/positions) and WebSocket
// (GET /api/v1/ws/positions).
//
// Both transports send the same JSON messages. The first is always
// metadata describing the active tracking set:
//
//	{"type":"metadata","source":"...","loaded_at":"...","tracked":200,...}
//
// followed by one message per tick:
//
//	{"type":"snapshot","generation":0,"tick":12,"time":"...","objects":[...]}
//
// A client that connects mid-session receives the latest snapshot at once.
// Pass ?trail=false to omit per-object trails.
package stream

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/groundtrack/internal/httputil"
	"github.com/star/groundtrack/internal/tracker"
)

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int           `yaml:"max_concurrent_per_ip" validate:"gt=0"`
	MaxTotal           int           `yaml:"max_total" validate:"gt=0"`
	KeepaliveInterval  time.Duration `yaml:"keepalive_interval" validate:"gt=0"`
	SendBuffer         int           `yaml:"send_buffer" validate:"gt=0"`
}

// DefaultConfig returns the default streaming limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		MaxTotal:           1000,
		KeepaliveInterval:  30 * time.Second,
		SendBuffer:         4,
	}
}

// Source is the read side of the tracker.
type Source interface {
	Latest() *tracker.Snapshot
	Arena() *tracker.Arena
	Config() tracker.Config
}

// Handler serves both stream transports.
type Handler struct {
	hub        *Hub
	src        Source
	config     Config
	trustProxy bool
	limiter    *streamLimiter
	logger     *slog.Logger
}

// NewHandler creates a streaming handler fed by hub.
func NewHandler(hub *Hub, src Source, config Config, trustProxy bool, logger *slog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		src:        src,
		config:     config,
		trustProxy: trustProxy,
		limiter:    newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:     logger,
	}
}

type metadataMessage struct {
	Type           string    `json:"type"`
	Source         string    `json:"source"`
	LoadedAt       time.Time `json:"loaded_at"`
	Tracked        int       `json:"tracked"`
	Rejected       int       `json:"rejected"`
	TickIntervalMS int64     `json:"tick_interval_ms"`
	TrailCapacity  int       `json:"trail_capacity"`
}

func (h *Handler) metadata() metadataMessage {
	a := h.src.Arena()
	cfg := h.src.Config()
	return metadataMessage{
		Type:           "metadata",
		Source:         a.Source(),
		LoadedAt:       a.LoadedAt().UTC(),
		Tracked:        a.Len(),
		Rejected:       len(a.Diagnostics()),
		TickIntervalMS: cfg.TickInterval.Milliseconds(),
		TrailCapacity:  cfg.TrailCapacity,
	}
}

// parseTrail reads the ?trail= flag. It defaults to true.
func parseTrail(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("trail")
	if v == "" {
		return true, nil
	}
	return strconv.ParseBool(v)
}

// admit applies the query and connection limits shared by both transports.
// On rejection it has already written the response.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, transport string) (ip string, withTrail, ok bool) {
	withTrail, err := parseTrail(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid trail parameter, must be a boolean")
		return "", false, false
	}

	ip = httputil.ClientIP(r, h.trustProxy)
	if !h.limiter.acquire(ip) {
		h.logger.Warn("stream limit exceeded",
			"transport", transport,
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return "", false, false
	}
	return ip, withTrail, true
}

// cursor remembers the last snapshot sent so a frame is never sent twice
// or out of order.
type cursor struct {
	gen, tick uint64
	started   bool
}

func (c *cursor) admit(f *Frame) bool {
	if c.started && !f.after(c.gen, c.tick) {
		return false
	}
	c.gen, c.tick, c.started = f.Snapshot.Generation, f.Snapshot.Tick, true
	return true
}
