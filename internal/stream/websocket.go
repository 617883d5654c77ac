package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/star/groundtrack/internal/metrics"
)

const (
	transportWS = "websocket"

	wsWriteWait   = 10 * time.Second
	wsMaxReadSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   16 * 1024,
	EnableCompression: false,
	// Position data is public; any page may embed the stream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket serves the position stream over a WebSocket.
// GET /api/v1/ws/positions?trail=true
//
// The server only writes; anything the client sends is discarded. Pings go
// out every KeepaliveInterval and a client that stops answering is dropped.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip, withTrail, ok := h.admit(w, r, transportWS)
	if !ok {
		return
	}
	defer h.limiter.release(ip)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()

	metrics.StreamClientConnected(transportWS)
	startTime := time.Now()
	h.logger.Info("stream connected",
		"transport", transportWS,
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)
	defer func() {
		metrics.StreamClientDisconnected(transportWS)
		h.logger.Info("stream disconnected",
			"transport", transportWS,
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// The read loop handles pongs and notices the client going away.
	pongWait := 2 * h.config.KeepaliveInterval
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(wsMaxReadSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	sub := h.hub.Subscribe()
	defer sub.Close()

	send := func(data []byte) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		metrics.RecordStreamMessage(transportWS, len(data))
		return nil
	}

	var cur cursor
	sendFrame := func(f *Frame) error {
		if !cur.admit(f) {
			return nil
		}
		data, err := f.JSON(withTrail)
		if err != nil {
			return fmt.Errorf("json marshal: %w", err)
		}
		return send(data)
	}

	meta, err := json.Marshal(h.metadata())
	if err != nil {
		h.logger.Warn("stream marshal error (metadata)", "error", err)
		return
	}
	if err := send(meta); err != nil {
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}
	if s := h.src.Latest(); s != nil {
		if err := sendFrame(NewFrame(s)); err != nil {
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return
		}
	}

	ping := time.NewTicker(h.config.KeepaliveInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return

		case <-closed:
			return

		case f := <-sub.C:
			if err := sendFrame(f); err != nil {
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				h.logger.Debug("websocket ping failed", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}
