package tracker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/star/groundtrack/internal/metrics"
	"github.com/star/groundtrack/internal/tle"
	"github.com/star/groundtrack/internal/tracing"
)

// Load reads src and builds an arena from it. Every failure to produce a
// usable arena wraps ErrResourceLoad.
func Load(ctx context.Context, src tle.Source, cfg Config, logger *slog.Logger) (*Arena, error) {
	ctx, span := tracing.Start(ctx, "tle.load", attribute.String("source", src.Name()))
	defer span.End()

	arena, err := load(ctx, src, cfg, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		metrics.RecordLoad(false, time.Time{})
		return nil, err
	}
	span.SetAttributes(attribute.Int("tracked", arena.Len()))
	metrics.RecordLoad(true, arena.loadedAt)
	return arena, nil
}

func load(ctx context.Context, src tle.Source, cfg Config, logger *slog.Logger) (*Arena, error) {
	start := time.Now()

	data, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResourceLoad, src.Name(), err)
	}

	res, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResourceLoad, src.Name(), err)
	}

	arena := NewArena(res, cfg, logger)
	arena.source = src.Name()
	arena.loadedAt = start

	if res.Lines == 0 {
		logger.Warn("element source is empty", "source", src.Name())
	}
	if res.Triplets() > 0 && arena.Len() == 0 {
		return nil, fmt.Errorf("%w: %s: none of %d element sets could be tracked",
			ErrResourceLoad, src.Name(), res.Triplets())
	}

	epochs := res.EpochRange()
	logger.Info("tracking set loaded",
		"source", src.Name(),
		"tracked", arena.Len(),
		"rejected", len(arena.Diagnostics()),
		"ignored_lines", arena.Ignored(),
		"epoch_min", epochs.Min.UTC().Format(time.RFC3339),
		"epoch_max", epochs.Max.UTC().Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return arena, nil
}

// Open loads src and returns a scheduler ready to Run. A load failure is
// fatal to the session.
func Open(ctx context.Context, src tle.Source, cfg Config, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	arena, err := Load(ctx, src, cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(arena, cfg, append([]Option{WithLogger(logger)}, opts...)...)
}

// Reload loads src and replaces the tracking set as a whole. On failure the
// current set stays active and the error is returned.
func (s *Scheduler) Reload(ctx context.Context, src tle.Source) error {
	arena, err := Load(ctx, src, s.cfg, s.logger)
	if err != nil {
		s.logger.Warn("reload failed, keeping current tracking set", "source", src.Name(), "error", err)
		return err
	}
	return s.Replace(ctx, arena)
}
