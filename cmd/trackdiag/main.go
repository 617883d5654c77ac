// Command trackdiag loads an element-set file and runs the tracking loop
// offline on simulated time, printing every tick and the load diagnostics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/star/groundtrack/internal/logging"
	"github.com/star/groundtrack/internal/tle"
	"github.com/star/groundtrack/internal/tracker"
)

type options struct {
	file      string
	start     time.Time
	ticks     int
	step      time.Duration
	trail     int
	max       int
	asJSON    bool
	showTrail bool
}

func main() {
	var (
		opts     options
		startStr string
		logLevel string
	)
	flag.StringVar(&opts.file, "file", "", "element-set file to load (required)")
	flag.StringVar(&startStr, "start", "", "simulation start time, RFC 3339 (default now)")
	flag.IntVar(&opts.ticks, "ticks", 10, "number of ticks to run")
	flag.DurationVar(&opts.step, "step", time.Second, "simulated time between ticks")
	flag.IntVar(&opts.trail, "trail", tracker.DefaultTrailCapacity, "trail capacity per object")
	flag.IntVar(&opts.max, "max", tracker.DefaultMaxTrackedObjects, "maximum tracked objects, 0 for no limit")
	flag.BoolVar(&opts.asJSON, "json", false, "print snapshots as JSON lines")
	flag.BoolVar(&opts.showTrail, "show-trail", false, "include trails in the output")
	flag.StringVar(&logLevel, "log-level", "warn", "log level for load messages on stderr")
	flag.Parse()

	if opts.file == "" {
		fmt.Fprintln(os.Stderr, "trackdiag: -file is required")
		flag.Usage()
		os.Exit(2)
	}

	opts.start = time.Now().UTC().Truncate(time.Second)
	if startStr != "" {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "trackdiag: invalid -start:", err)
			os.Exit(2)
		}
		opts.start = t
	}

	lvl, err := logging.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "trackdiag:", err)
		os.Exit(2)
	}
	logger := logging.NewWithWriter(os.Stderr, lvl)

	if err := run(context.Background(), opts, os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, "trackdiag:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, w io.Writer, logger *slog.Logger) error {
	cfg := tracker.Config{
		TickInterval:      opts.step,
		TrailCapacity:     opts.trail,
		MaxTrackedObjects: opts.max,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.ticks < 1 {
		return fmt.Errorf("ticks must be positive, got %d", opts.ticks)
	}

	arena, err := tracker.Load(ctx, tle.NewFileSource(opts.file), cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := &printer{w: w, limit: opts.ticks, cancel: cancel, asJSON: opts.asJSON, showTrail: opts.showTrail}

	s, err := tracker.New(arena, cfg,
		tracker.WithClock(tracker.NewSteppedClock(opts.start)),
		tracker.WithSink(p),
		tracker.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Loaded %d objects from %s (%d rejected, %d trailing lines ignored)\n",
		arena.Len(), arena.Source(), len(arena.Diagnostics()), arena.Ignored())

	if err := s.Run(ctx); err != nil {
		return err
	}
	if p.err != nil {
		return p.err
	}

	printDiagnostics(w, arena)
	return nil
}

// printer writes the first limit snapshots and then stops the run.
type printer struct {
	w         io.Writer
	limit     int
	cancel    context.CancelFunc
	asJSON    bool
	showTrail bool

	seen int
	err  error
}

func (p *printer) Publish(snap *tracker.Snapshot) {
	if p.seen >= p.limit {
		return
	}
	p.seen++
	if p.seen == p.limit {
		p.cancel()
	}

	if p.asJSON {
		out := *snap
		if !p.showTrail {
			out.Objects = make([]tracker.ObjectSnapshot, len(snap.Objects))
			for i, o := range snap.Objects {
				o.Trail = nil
				out.Objects[i] = o
			}
		}
		data, err := json.Marshal(out)
		if err != nil {
			p.err = err
			return
		}
		fmt.Fprintf(p.w, "%s\n", data)
		return
	}

	fmt.Fprintf(p.w, "\ntick %d  %s  positioned %d/%d  failed %d\n",
		snap.Tick, snap.Time.UTC().Format(time.RFC3339), len(snap.Objects), snap.Tracked, snap.Failed)
	for _, o := range snap.Objects {
		fmt.Fprintf(p.w, "  %5d %-24s %-8s lat=%8.3f lon=%9.3f alt=%9.1f km",
			o.CatalogID, o.Name, o.Category, o.Latitude, o.Longitude, o.AltitudeKm)
		if p.showTrail {
			fmt.Fprintf(p.w, "  trail=%d", len(o.Trail))
		}
		fmt.Fprintln(p.w)
	}
}

func printDiagnostics(w io.Writer, a *tracker.Arena) {
	diags := a.Diagnostics()
	if len(diags) == 0 {
		fmt.Fprintln(w, "\nNo rejected element sets")
		return
	}
	fmt.Fprintf(w, "\nRejected element sets: %d\n", len(diags))
	for _, d := range diags {
		fmt.Fprintf(w, "  #%d %q: %v\n", d.Index, d.Name, d.Err)
	}
}
