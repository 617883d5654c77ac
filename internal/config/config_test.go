package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/star/groundtrack/internal/tle"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "groundtrack.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := load("", env(nil), testLogger)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tc := cfg.Tracker.Tracker()
	if tc.TickInterval != time.Second || tc.TrailCapacity != 50 || tc.MaxTrackedObjects != 200 {
		t.Errorf("tracker config = %+v", tc)
	}
	if cfg.Source.URL != tle.DefaultSourceURL {
		t.Errorf("source url = %q", cfg.Source.URL)
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("tracker config invalid: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, `
http:
  addr: ":9090"
  trust_proxy: true
tracker:
  tick_interval_ms: 500
  trail_capacity: 20
  max_tracked_objects: 0
source:
  file: /data/active.tle
  refresh_interval: 6h
stream:
  max_concurrent_per_ip: 3
  max_total: 50
  keepalive_interval: 15s
  send_buffer: 2
log:
  level: debug
tracing:
  enabled: true
  exporter: otlp
  endpoint: collector:4317
  sample_ratio: 0.25
`)
	cfg, err := load(path, env(nil), testLogger)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" || !cfg.HTTP.TrustProxy {
		t.Errorf("http = %+v", cfg.HTTP)
	}
	if got := cfg.Tracker.Tracker().TickInterval; got != 500*time.Millisecond {
		t.Errorf("tick interval = %v", got)
	}
	if cfg.Tracker.MaxTrackedObjects != 0 {
		t.Errorf("max tracked = %d, want 0", cfg.Tracker.MaxTrackedObjects)
	}
	if cfg.Source.File != "/data/active.tle" || cfg.Source.RefreshInterval != 6*time.Hour {
		t.Errorf("source = %+v", cfg.Source)
	}
	// Unset keys keep their defaults.
	if cfg.Source.FetchTimeout != 30*time.Second {
		t.Errorf("fetch timeout = %v, want default", cfg.Source.FetchTimeout)
	}
	if cfg.Stream.KeepaliveInterval != 15*time.Second || cfg.Stream.MaxTotal != 50 {
		t.Errorf("stream = %+v", cfg.Stream)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.SampleRatio != 0.25 || cfg.Tracing.ServiceName != "groundtrack" {
		t.Errorf("tracing = %+v", cfg.Tracing)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "tracker:\n  tick_interval: 5\n")
	if _, err := load(path, env(nil), testLogger); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	if _, err := load(writeFile(t, ""), env(nil), testLogger); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := load(filepath.Join(t.TempDir(), "nope.yaml"), env(nil), testLogger); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "http:\n  addr: \":9090\"\n")
	cfg, err := load(path, env(map[string]string{
		"GROUNDTRACK_HTTP_ADDR":            ":7000",
		"GROUNDTRACK_TICK_INTERVAL_MS":     "250",
		"GROUNDTRACK_TLE_EXTRA_URLS":       " https://a.example/x.tle , ,https://b.example/y.tle",
		"GROUNDTRACK_TLE_REFRESH_INTERVAL": "3600",
		"GROUNDTRACK_AUTH_ENABLED":         "true",
		"GROUNDTRACK_AUTH_TOKEN":           "s3cret",
		"GROUNDTRACK_RATE_LIMIT":           "2.5",
	}), testLogger)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Errorf("addr = %q, env should win over file", cfg.HTTP.Addr)
	}
	if cfg.Tracker.TickIntervalMS != 250 {
		t.Errorf("tick interval = %d", cfg.Tracker.TickIntervalMS)
	}
	want := []string{"https://a.example/x.tle", "https://b.example/y.tle"}
	if strings.Join(cfg.Source.ExtraURLs, " ") != strings.Join(want, " ") {
		t.Errorf("extra urls = %q, want %q", cfg.Source.ExtraURLs, want)
	}
	if cfg.Source.RefreshInterval != time.Hour {
		t.Errorf("refresh = %v", cfg.Source.RefreshInterval)
	}
	if !cfg.Auth.Enabled || cfg.Auth.Token != "s3cret" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.HTTP.RateLimit != 2.5 {
		t.Errorf("rate limit = %v", cfg.HTTP.RateLimit)
	}
}

func TestInvalidEnvKeepsCurrentValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
		check func(Config) bool
	}{
		{"GROUNDTRACK_TICK_INTERVAL_MS", "fast", func(c Config) bool { return c.Tracker.TickIntervalMS == 1000 }},
		{"GROUNDTRACK_TICK_INTERVAL_MS", "0", func(c Config) bool { return c.Tracker.TickIntervalMS == 1000 }},
		{"GROUNDTRACK_TRAIL_CAPACITY", "-3", func(c Config) bool { return c.Tracker.TrailCapacity == 50 }},
		{"GROUNDTRACK_TRUST_PROXY", "maybe", func(c Config) bool { return !c.HTTP.TrustProxy }},
		{"GROUNDTRACK_TLE_FETCH_TIMEOUT", "soon", func(c Config) bool { return c.Source.FetchTimeout == 30*time.Second }},
		{"GROUNDTRACK_RATE_LIMIT", "-1", func(c Config) bool { return c.HTTP.RateLimit == 20 }},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg, err := load("", env(map[string]string{tt.key: tt.value}), testLogger)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("value changed by invalid override: %+v", cfg)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		vars map[string]string
	}{
		{"auth without token", "auth:\n  enabled: true\n", nil},
		{"no source", "source:\n  url: \"\"\n", nil},
		{"bad source url", "source:\n  url: not a url\n", nil},
		{"bad extra url", "source:\n  extra_urls: [\"::\"]\n", nil},
		{"bad log level", "log:\n  level: loud\n", nil},
		{"bad exporter", "tracing:\n  exporter: zipkin\n", nil},
		{"sample ratio above one", "tracing:\n  sample_ratio: 2\n", nil},
		{"empty addr", "http:\n  addr: \"\"\n", nil},
		{"zero keepalive", "stream:\n  keepalive_interval: 0s\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load(writeFile(t, tt.yaml), env(tt.vars), testLogger); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
