package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/star/groundtrack/internal/httputil"
	"github.com/star/groundtrack/internal/tle"
	"github.com/star/groundtrack/internal/tracker"
)

const (
	contentTypeMsgpack = "application/msgpack"
	reloadTimeout      = 2 * time.Minute
	reloadWriteMargin  = 10 * time.Second
)

// Tracker is the view of the scheduler the API needs.
type Tracker interface {
	Latest() *tracker.Snapshot
	Arena() *tracker.Arena
	Config() tracker.Config
	Reload(ctx context.Context, src tle.Source) error
}

type handlers struct {
	tracker Tracker
	source  tle.Source
	logger  *slog.Logger

	reloading sync.Mutex
}

func (h *handlers) snapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.tracker.Latest()
	if snap == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no snapshot yet")
		return
	}
	if !strings.Contains(r.Header.Get("Accept"), contentTypeMsgpack) {
		httputil.WriteJSON(w, http.StatusOK, snap)
		return
	}
	body, err := msgpack.Marshal(snap)
	if err != nil {
		h.logger.Error("encoding snapshot", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "encoding failed")
		return
	}
	w.Header().Set("Content-Type", contentTypeMsgpack)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type objectsResponse struct {
	Source   string                `json:"source"`
	LoadedAt time.Time             `json:"loaded_at"`
	Count    int                   `json:"count"`
	Objects  []tracker.ObjectInfo `json:"objects"`
}

func (h *handlers) objects(w http.ResponseWriter, r *http.Request) {
	a := h.tracker.Arena()
	objs := a.Objects()
	httputil.WriteJSON(w, http.StatusOK, objectsResponse{
		Source:   a.Source(),
		LoadedAt: a.LoadedAt(),
		Count:    len(objs),
		Objects:  objs,
	})
}

type objectResponse struct {
	Object   tracker.ObjectInfo      `json:"object"`
	Position *tracker.ObjectSnapshot `json:"position"`
	Tick     uint64                  `json:"tick"`
	Time     time.Time               `json:"time,omitzero"`
}

// object reports one tracked object by handle. Position is null when the
// latest tick could not place it.
func (h *handlers) object(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid object id")
		return
	}
	a := h.tracker.Arena()
	objs := a.Objects()
	if id >= len(objs) {
		httputil.WriteError(w, http.StatusNotFound, "object not found")
		return
	}

	resp := objectResponse{Object: objs[id]}
	// A snapshot from another generation uses different handles.
	if snap := h.tracker.Latest(); snap != nil && snap.Generation == a.Generation() {
		if pos, ok := snap.Object(tracker.Handle(id)); ok {
			resp.Position = &pos
		}
		resp.Tick = snap.Tick
		resp.Time = snap.Time
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type rejectedEntry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
	Error string `json:"error"`
}

type diagnosticsResponse struct {
	Source       string          `json:"source"`
	LoadedAt     time.Time       `json:"loaded_at"`
	Tracked      int             `json:"tracked"`
	IgnoredLines int             `json:"ignored_lines"`
	Rejected     []rejectedEntry `json:"rejected"`
}

func (h *handlers) diagnostics(w http.ResponseWriter, r *http.Request) {
	a := h.tracker.Arena()
	diags := a.Diagnostics()
	rejected := make([]rejectedEntry, len(diags))
	for i, d := range diags {
		rejected[i] = rejectedEntry{
			Index: d.Index,
			Name:  d.Name,
			Line1: d.Line1,
			Line2: d.Line2,
			Error: d.Error(),
		}
	}
	httputil.WriteJSON(w, http.StatusOK, diagnosticsResponse{
		Source:       a.Source(),
		LoadedAt:     a.LoadedAt(),
		Tracked:      a.Len(),
		IgnoredLines: a.Ignored(),
		Rejected:     rejected,
	})
}

// reload replaces the tracking set from the configured source. Concurrent
// requests are refused rather than queued.
func (h *handlers) reload(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		httputil.WriteError(w, http.StatusNotImplemented, "no reloadable source configured")
		return
	}
	if !h.reloading.TryLock() {
		httputil.WriteError(w, http.StatusConflict, "reload already in progress")
		return
	}
	defer h.reloading.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), reloadTimeout)
	defer cancel()

	// The server's WriteTimeout is far shorter than a slow fetch; give the
	// response until the reload deadline plus a margin to be written.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(reloadTimeout + reloadWriteMargin)); err != nil {
		h.logger.Debug("cannot extend write deadline for reload", "component", "api", "error", err)
	}

	if err := h.tracker.Reload(ctx, h.source); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, tracker.ErrResourceLoad):
			status = http.StatusBadGateway
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
		}
		httputil.WriteError(w, status, err.Error())
		return
	}

	a := h.tracker.Arena()
	h.logger.Info("tracking set reloaded", "component", "api", "source", a.Source(), "tracked", a.Len())
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"source":    a.Source(),
		"loaded_at": a.LoadedAt(),
		"tracked":   a.Len(),
		"rejected":  len(a.Diagnostics()),
	})
}
