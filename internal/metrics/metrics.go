package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundtrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groundtrack_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	httpRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "groundtrack_http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		},
	)

	tickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "groundtrack_tick_duration_seconds",
			Help:    "Time spent propagating every tracked object in one tick.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		},
	)

	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "groundtrack_ticks_total",
			Help: "Total number of completed ticks.",
		},
	)

	trackedObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundtrack_tracked_objects",
			Help: "Number of objects in the active tracking set.",
		},
	)

	positionedObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundtrack_positioned_objects",
			Help: "Number of objects with a position in the latest snapshot.",
		},
	)

	propagationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "groundtrack_propagation_failures_total",
			Help: "Per-object propagation failures across all ticks.",
		},
	)

	parseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundtrack_parse_failures_total",
			Help: "Element sets rejected while loading, by stage.",
		},
		[]string{"stage"},
	)

	reloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundtrack_reloads_total",
			Help: "Tracking set loads, by result.",
		},
		[]string{"result"},
	)

	datasetLoadedTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundtrack_dataset_loaded_timestamp_seconds",
			Help: "Unix time the active tracking set was loaded.",
		},
	)

	streamClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "groundtrack_stream_clients",
			Help: "Connected stream clients, by transport.",
		},
		[]string{"transport"},
	)

	streamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundtrack_stream_messages_total",
			Help: "Snapshots delivered to stream clients, by transport.",
		},
		[]string{"transport"},
	)

	streamBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundtrack_stream_bytes_total",
			Help: "Bytes written to stream clients, by transport.",
		},
		[]string{"transport"},
	)

	streamDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "groundtrack_stream_dropped_total",
			Help: "Snapshots dropped for subscribers that fell behind.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		httpRateLimitedTotal,
		tickDurationSeconds,
		ticksTotal,
		trackedObjects,
		positionedObjects,
		propagationFailuresTotal,
		parseFailuresTotal,
		reloadsTotal,
		datasetLoadedTimestamp,
		streamClients,
		streamMessagesTotal,
		streamBytesTotal,
		streamDroppedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTick records one completed tick.
func RecordTick(d time.Duration, tracked, positioned, failed int) {
	tickDurationSeconds.Observe(d.Seconds())
	ticksTotal.Inc()
	trackedObjects.Set(float64(tracked))
	positionedObjects.Set(float64(positioned))
	if failed > 0 {
		propagationFailuresTotal.Add(float64(failed))
	}
}

// RecordParseFailures counts rejected element sets. stage is "parse" or "init".
func RecordParseFailures(stage string, n int) {
	if n > 0 {
		parseFailuresTotal.WithLabelValues(stage).Add(float64(n))
	}
}

// RecordLoad counts a load attempt; a successful one also stamps the load time.
func RecordLoad(ok bool, at time.Time) {
	if !ok {
		reloadsTotal.WithLabelValues("failure").Inc()
		return
	}
	reloadsTotal.WithLabelValues("success").Inc()
	datasetLoadedTimestamp.Set(float64(at.Unix()))
}

// RecordRateLimited counts a request rejected by the rate limiter.
func RecordRateLimited() {
	httpRateLimitedTotal.Inc()
}

// StreamClientConnected increments the client gauge for transport.
func StreamClientConnected(transport string) {
	streamClients.WithLabelValues(transport).Inc()
}

// StreamClientDisconnected decrements the client gauge for transport.
func StreamClientDisconnected(transport string) {
	streamClients.WithLabelValues(transport).Dec()
}

// RecordStreamMessage counts one delivered message of n bytes.
func RecordStreamMessage(transport string, n int) {
	streamMessagesTotal.WithLabelValues(transport).Inc()
	streamBytesTotal.WithLabelValues(transport).Add(float64(n))
}

// RecordStreamDropped counts a snapshot skipped for a slow subscriber.
func RecordStreamDropped() {
	streamDroppedTotal.Inc()
}

// knownRoutes are recorded under their own path label.
var knownRoutes = map[string]bool{
	"/":                        true,
	"/app.js":                  true,
	"/styles.css":              true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/snapshot":         true,
	"/api/v1/objects":          true,
	"/api/v1/diagnostics":      true,
	"/api/v1/tle/reload":       true,
	"/api/v1/stream/positions": true,
	"/api/v1/ws/positions":     true,
}

const objectPrefix = "/api/v1/objects/"

// normalizeRoute maps a request path to a bounded set of labels so that
// object IDs and scanner traffic cannot blow up series cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, objectPrefix); ok && id != "" && !strings.Contains(id, "/") {
		return objectPrefix + "{id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so streaming handlers keep working.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack forwards to the wrapped writer for WebSocket upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
