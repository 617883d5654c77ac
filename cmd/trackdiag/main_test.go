package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/star/groundtrack/internal/tracker"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const elements = "HST\n" +
	"1 20580U 90037B   25138.50000000  .00001310  00000+0  63926-4 0  9992\n" +
	"2 20580  28.4699 121.2539 0002470 101.6428 258.4469 15.27812343727317\n" +
	"BROKEN\n" +
	"1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2920\n" +
	"2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537\n"

func writeElements(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "active.tle")
	if err := os.WriteFile(path, []byte(elements), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testOptions(t *testing.T) options {
	return options{
		file:  writeElements(t),
		start: time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC),
		ticks: 3,
		step:  10 * time.Second,
		trail: 50,
		max:   200,
	}
}

func TestRunText(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), testOptions(t), &out, testLogger); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()

	for _, want := range []string{
		"Loaded 1 objects",
		"tick 0  2025-05-18T12:00:00Z",
		"tick 2  2025-05-18T12:00:20Z",
		"20580 HST",
		"Rejected element sets: 1",
		`#1 "BROKEN"`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "tick 3 ") {
		t.Errorf("printed more than the requested ticks:\n%s", text)
	}
}

func TestRunJSON(t *testing.T) {
	opts := testOptions(t)
	opts.asJSON = true
	opts.showTrail = true

	var out bytes.Buffer
	if err := run(context.Background(), opts, &out, testLogger); err != nil {
		t.Fatalf("run: %v", err)
	}

	var snaps []tracker.Snapshot
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var s tracker.Snapshot
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			t.Fatalf("decoding %q: %v", line, err)
		}
		snaps = append(snaps, s)
	}
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	last := snaps[2]
	if len(last.Objects) != 1 || len(last.Objects[0].Trail) != 3 {
		t.Errorf("last snapshot = %+v", last)
	}
	if alt := last.Objects[0].AltitudeKm; alt < 450 || alt > 600 {
		t.Errorf("HST altitude = %.1f km", alt)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*options)
	}{
		{"missing file", func(o *options) { o.file = filepath.Join(t.TempDir(), "none.tle") }},
		{"zero ticks", func(o *options) { o.ticks = 0 }},
		{"zero step", func(o *options) { o.step = 0 }},
		{"zero trail", func(o *options) { o.trail = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			tt.modify(&opts)
			if err := run(context.Background(), opts, io.Discard, testLogger); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
