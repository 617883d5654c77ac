package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/app.js", "/app.js"},
		{"/api/v1/snapshot", "/api/v1/snapshot"},
		{"/api/v1/objects", "/api/v1/objects"},
		{"/api/v1/diagnostics", "/api/v1/diagnostics"},
		{"/api/v1/tle/reload", "/api/v1/tle/reload"},
		{"/api/v1/stream/positions", "/api/v1/stream/positions"},
		{"/api/v1/ws/positions", "/api/v1/ws/positions"},

		// Object lookups collapse to one label.
		{"/api/v1/objects/0", "/api/v1/objects/{id}"},
		{"/api/v1/objects/17", "/api/v1/objects/{id}"},
		{"/api/v1/objects/1234", "/api/v1/objects/{id}"},

		// Unknown/bot paths collapse to "other".
		{"/api/v1/objects/", "other"},
		{"/api/v1/objects/1/extra", "other"},
		{"/wp-admin", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 object IDs produce exactly one
// distinct path label.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[normalizeRoute("/api/v1/objects/"+strconv.Itoa(i))] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for object paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareExposesMetrics(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/objects/7", nil))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	want := `groundtrack_http_requests_total{code="418",method="GET",path="/api/v1/objects/{id}"}`
	if !strings.Contains(body, want) {
		t.Errorf("metrics output missing %s", want)
	}
}
