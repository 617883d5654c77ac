package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/star/groundtrack/internal/httputil"
	"github.com/star/groundtrack/internal/metrics"
)

const transportSSE = "sse"

// HandleSSE serves the position stream as Server-Sent Events.
// GET /api/v1/stream/positions?trail=true
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	ip, withTrail, ok := h.admit(w, r, transportSSE)
	if !ok {
		return
	}

	metrics.StreamClientConnected(transportSSE)
	startTime := time.Now()
	h.logger.Info("stream connected",
		"transport", transportSSE,
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)
	defer func() {
		h.limiter.release(ip)
		metrics.StreamClientDisconnected(transportSSE)
		h.logger.Info("stream disconnected",
			"transport", transportSSE,
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The server's WriteTimeout would otherwise cut long-lived streams.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &sseClient{w: w, flusher: flusher, rc: rc, logger: h.logger}

	// Jittered retry (3-7s) spreads reconnects after a restart.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.IntN(4000))
	flusher.Flush()

	sub := h.hub.Subscribe()
	defer sub.Close()

	meta, err := json.Marshal(h.metadata())
	if err != nil {
		h.logger.Warn("stream marshal error (metadata)", "error", err)
		return
	}
	if err := c.send(meta); err != nil {
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	var cur cursor
	if s := h.src.Latest(); s != nil {
		if err := c.sendFrame(NewFrame(s), withTrail, &cur); err != nil {
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return
		}
	}

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case f := <-sub.C:
			if err := c.sendFrame(f, withTrail, &cur); err != nil {
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// sseClient writes SSE events to one connection.
type sseClient struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger
}

func (c *sseClient) sendFrame(f *Frame, withTrail bool, cur *cursor) error {
	if !cur.admit(f) {
		return nil
	}
	data, err := f.JSON(withTrail)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.send(data)
}

// send writes one "data: {json}\n\n" event.
func (c *sseClient) send(data []byte) error {
	c.extendDeadline()
	n, err := fmt.Fprintf(c.w, "data: %s\n\n", data)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.flusher.Flush()
	metrics.RecordStreamMessage(transportSSE, n)
	return nil
}

// sendKeepalive writes an SSE comment line.
func (c *sseClient) sendKeepalive() error {
	c.extendDeadline()
	if _, err := fmt.Fprint(c.w, ":\n\n"); err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}
	c.flusher.Flush()
	return nil
}

func (c *sseClient) extendDeadline() {
	if err := c.rc.SetWriteDeadline(time.Now().Add(30 * time.Second)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
}
