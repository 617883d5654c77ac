// Package config assembles the service configuration from defaults, an
// optional YAML file and GROUNDTRACK_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/star/groundtrack/internal/api"
	"github.com/star/groundtrack/internal/auth"
	"github.com/star/groundtrack/internal/logging"
	"github.com/star/groundtrack/internal/stream"
	"github.com/star/groundtrack/internal/tle"
	"github.com/star/groundtrack/internal/tracing"
	"github.com/star/groundtrack/internal/tracker"
)

// Config is the complete service configuration.
type Config struct {
	HTTP    api.Config     `yaml:"http"`
	Auth    auth.Config    `yaml:"auth"`
	Tracker TrackerConfig  `yaml:"tracker"`
	Source  SourceConfig   `yaml:"source"`
	Stream  stream.Config  `yaml:"stream"`
	Log     logging.Config `yaml:"log"`
	Tracing tracing.Config `yaml:"tracing"`
}

// TrackerConfig is the file form of tracker.Config.
type TrackerConfig struct {
	TickIntervalMS    int `yaml:"tick_interval_ms" validate:"gt=0"`
	TrailCapacity     int `yaml:"trail_capacity" validate:"gt=0"`
	MaxTrackedObjects int `yaml:"max_tracked_objects" validate:"gte=0"`
}

// Tracker converts c for the tracking loop.
func (c TrackerConfig) Tracker() tracker.Config {
	return tracker.Config{
		TickInterval:      time.Duration(c.TickIntervalMS) * time.Millisecond,
		TrailCapacity:     c.TrailCapacity,
		MaxTrackedObjects: c.MaxTrackedObjects,
	}
}

// SourceConfig selects where element sets come from. A File takes
// precedence over URL.
type SourceConfig struct {
	URL       string   `yaml:"url" validate:"omitempty,url"`
	ExtraURLs []string `yaml:"extra_urls" validate:"dive,url"`
	File      string   `yaml:"file"`
	// CacheDir keeps copies of fetched data for use when the URL is
	// unreachable. Empty disables the cache.
	CacheDir      string `yaml:"cache_dir"`
	CacheMaxFiles int    `yaml:"cache_max_files" validate:"gte=0"`
	// RefreshInterval reloads the source periodically; zero disables it.
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gte=0"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	tc := tracker.DefaultConfig()
	return Config{
		HTTP: api.Config{
			Addr:      ":8080",
			RateLimit: 20,
			RateBurst: 40,
		},
		Tracker: TrackerConfig{
			TickIntervalMS:    int(tc.TickInterval / time.Millisecond),
			TrailCapacity:     tc.TrailCapacity,
			MaxTrackedObjects: tc.MaxTrackedObjects,
		},
		Source: SourceConfig{
			URL:           tle.DefaultSourceURL,
			CacheDir:      "/tmp/groundtrack/tle",
			CacheMaxFiles: 5,
			FetchTimeout:  30 * time.Second,
		},
		Stream: stream.DefaultConfig(),
		Log: logging.Config{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Tracing: tracing.Config{
			ServiceName: "groundtrack",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides and validates the result.
func Load(path string, logger *slog.Logger) (Config, error) {
	return load(path, os.Getenv, logger)
}

func load(path string, getenv func(string) string, logger *slog.Logger) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnv(&cfg, getenv, logger)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos do not silently fall back to
// defaults.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Source.URL == "" && c.Source.File == "" {
		return errors.New("invalid configuration: source.url or source.file is required")
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string, logger *slog.Logger) {
	e := envReader{getenv: getenv, logger: logger}

	e.string("GROUNDTRACK_HTTP_ADDR", &cfg.HTTP.Addr)
	e.bool("GROUNDTRACK_TRUST_PROXY", &cfg.HTTP.TrustProxy)
	e.float("GROUNDTRACK_RATE_LIMIT", &cfg.HTTP.RateLimit)
	e.int("GROUNDTRACK_RATE_BURST", &cfg.HTTP.RateBurst, 0)

	e.bool("GROUNDTRACK_AUTH_ENABLED", &cfg.Auth.Enabled)
	e.string("GROUNDTRACK_AUTH_TOKEN", &cfg.Auth.Token)

	e.int("GROUNDTRACK_TICK_INTERVAL_MS", &cfg.Tracker.TickIntervalMS, 1)
	e.int("GROUNDTRACK_TRAIL_CAPACITY", &cfg.Tracker.TrailCapacity, 1)
	e.int("GROUNDTRACK_MAX_TRACKED_OBJECTS", &cfg.Tracker.MaxTrackedObjects, 0)

	e.string("GROUNDTRACK_TLE_SOURCE_URL", &cfg.Source.URL)
	e.list("GROUNDTRACK_TLE_EXTRA_URLS", &cfg.Source.ExtraURLs)
	e.string("GROUNDTRACK_TLE_FILE", &cfg.Source.File)
	e.string("GROUNDTRACK_TLE_CACHE_DIR", &cfg.Source.CacheDir)
	e.int("GROUNDTRACK_TLE_CACHE_MAX_FILES", &cfg.Source.CacheMaxFiles, 0)
	e.seconds("GROUNDTRACK_TLE_REFRESH_INTERVAL", &cfg.Source.RefreshInterval, 0)
	e.seconds("GROUNDTRACK_TLE_FETCH_TIMEOUT", &cfg.Source.FetchTimeout, 1)

	e.int("GROUNDTRACK_STREAM_MAX_CONCURRENT", &cfg.Stream.MaxConcurrentPerIP, 1)
	e.int("GROUNDTRACK_STREAM_MAX_TOTAL", &cfg.Stream.MaxTotal, 1)
	e.seconds("GROUNDTRACK_STREAM_KEEPALIVE_INTERVAL", &cfg.Stream.KeepaliveInterval, 1)

	e.string("GROUNDTRACK_LOG_LEVEL", &cfg.Log.Level)
	e.string("GROUNDTRACK_LOG_FILE", &cfg.Log.File)

	e.bool("GROUNDTRACK_TRACING_ENABLED", &cfg.Tracing.Enabled)
	e.string("GROUNDTRACK_TRACING_EXPORTER", &cfg.Tracing.Exporter)
	e.string("GROUNDTRACK_TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
	e.float("GROUNDTRACK_TRACING_SAMPLE_RATIO", &cfg.Tracing.SampleRatio)
}

// envReader overrides fields from the environment. An unparseable value
// logs a warning and leaves the field unchanged.
type envReader struct {
	getenv func(string) string
	logger *slog.Logger
}

func (e envReader) invalid(key, v string, current any) {
	e.logger.Warn("invalid "+key+" value, keeping current setting", "value", v, "current", current)
}

func (e envReader) string(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e envReader) list(key string, dst *[]string) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}

func (e envReader) bool(key string, dst *bool) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.invalid(key, v, *dst)
		return
	}
	*dst = b
}

func (e envReader) int(key string, dst *int, floor int) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		e.invalid(key, v, *dst)
		return
	}
	*dst = n
}

func (e envReader) float(key string, dst *float64) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		e.invalid(key, v, *dst)
		return
	}
	*dst = f
}

func (e envReader) seconds(key string, dst *time.Duration, floor int) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		e.invalid(key, v, dst.Seconds())
		return
	}
	*dst = time.Duration(n) * time.Second
}
