package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/star/groundtrack/internal/api"
	"github.com/star/groundtrack/internal/config"
	"github.com/star/groundtrack/internal/logging"
	"github.com/star/groundtrack/internal/stream"
	"github.com/star/groundtrack/internal/tle"
	"github.com/star/groundtrack/internal/tracing"
	"github.com/star/groundtrack/internal/tracker"
	"github.com/star/groundtrack/web"
)

func main() {
	configPath := flag.String("config", os.Getenv("GROUNDTRACK_CONFIG"), "path to YAML config file")
	flag.Parse()

	// Used until the configured logger exists.
	boot := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath, boot)
	if err != nil {
		boot.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		boot.Error("invalid log configuration", "error", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)
	logging.LogStartup(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("groundtrack stopped", "error", err)
		closeLog()
		os.Exit(1)
	}
	logger.Info("groundtrack stopped")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer tracing.Shutdown(shutdownTracing, logger)

	src := buildSource(cfg.Source, logger)
	hub := stream.NewHub(cfg.Stream.SendBuffer, logger)

	// A failed initial load ends the process; there is nothing to serve.
	sched, err := tracker.Open(ctx, src, cfg.Tracker.Tracker(), logger,
		tracker.WithSink(hub),
		tracker.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// Streams end as soon as any component fails or a signal arrives.
	streamHandler := stream.NewHandler(hub, sched, cfg.Stream, cfg.HTTP.TrustProxy, logger)
	srv := api.NewServer(gctx, cfg.HTTP, cfg.Auth, api.Deps{
		Tracker: sched,
		Source:  src,
		Stream:  streamHandler,
		Web:     web.Content,
	}, logger)

	g.Go(func() error {
		return sched.Run(gctx)
	})

	if cfg.Source.RefreshInterval > 0 {
		g.Go(func() error {
			refreshLoop(gctx, sched, src, cfg.Source.RefreshInterval, logger)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("starting server",
			"addr", cfg.HTTP.Addr,
			"auth_enabled", cfg.Auth.Enabled,
			"source", src.Name(),
			"tracked", sched.Arena().Len(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.HTTPServer().Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildSource prefers a local file. A URL source is wrapped in the disk
// cache when a cache directory is configured.
func buildSource(cfg config.SourceConfig, logger *slog.Logger) tle.Source {
	if cfg.File != "" {
		return tle.NewFileSource(cfg.File)
	}
	fetcher := tle.NewFetcher(cfg.URL, logger, cfg.ExtraURLs...).WithTimeout(cfg.FetchTimeout)
	if cfg.CacheDir == "" {
		return fetcher
	}
	return tle.NewCachedSource(fetcher, tle.NewCache(cfg.CacheDir, cfg.CacheMaxFiles), logger)
}

// refreshLoop reloads src every interval. A failed reload keeps the
// current tracking set; the scheduler logs it.
func refreshLoop(ctx context.Context, sched *tracker.Scheduler, src tle.Source, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sched.Reload(ctx, src); err == nil {
				logger.Info("periodic refresh complete", "source", src.Name(), "tracked", sched.Arena().Len())
			}
		}
	}
}
