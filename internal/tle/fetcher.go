package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultSourceURL is CelesTrak's active-satellites group in three-line format.
const DefaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle"

const (
	// maxBodyBytes caps a single response body.
	maxBodyBytes = 50 * 1024 * 1024
)

var errBodyTooLarge = errors.New("response exceeds byte limit")

// Fetcher retrieves element sets over HTTP. The primary URL must succeed;
// extra URLs are fetched alongside it and appended when they succeed.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given primary URL and optional extra URLs.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// WithTimeout sets the per-request timeout.
func (f *Fetcher) WithTimeout(d time.Duration) *Fetcher {
	if d > 0 {
		f.httpClient.Timeout = d
	}
	return f
}

// SourceURL returns the configured primary URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

func (f *Fetcher) Name() string {
	return f.sourceURL
}

// Load fetches all URLs concurrently and concatenates the bodies, primary
// first, extras in configuration order. Each body is cut to whole triplets
// before joining so a truncated body cannot shift the records after it.
func (f *Fetcher) Load(ctx context.Context) ([]byte, error) {
	bodies := make([][]byte, 1+len(f.extraURLs))

	var g errgroup.Group
	g.Go(func() error {
		body, err := f.get(ctx, f.sourceURL)
		if err != nil {
			return err
		}
		bodies[0] = body
		return nil
	})
	for i, u := range f.extraURLs {
		g.Go(func() error {
			body, err := f.get(ctx, u)
			if err != nil {
				f.logger.Warn("extra element source failed", "url", u, "error", err)
				return nil
			}
			bodies[i+1] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []byte
	for i, b := range bodies {
		lines, dropped := wholeTriplets(b)
		if dropped > 0 {
			url := f.sourceURL
			if i > 0 {
				url = f.extraURLs[i-1]
			}
			f.logger.Warn("dropping incomplete trailing element set", "url", url, "lines", dropped)
		}
		for _, l := range lines {
			out = append(out, l...)
			out = append(out, '\n')
		}
	}
	return out, nil
}

// wholeTriplets returns the non-empty lines of b, trimmed, cut to a multiple
// of three, and the number of lines cut.
func wholeTriplets(b []byte) ([][]byte, int) {
	var lines [][]byte
	for _, l := range bytes.Split(b, []byte{'\n'}) {
		if l = bytes.TrimSpace(l); len(l) > 0 {
			lines = append(lines, l)
		}
	}
	keep := len(lines) - len(lines)%3
	return lines[:keep], len(lines) - keep
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching element sets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w of %d bytes from %s", errBodyTooLarge, maxBodyBytes, url)
	}

	return body, nil
}
