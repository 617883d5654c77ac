package tle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	cacheFilePrefix = "elements_"
	cacheFileSuffix = ".tle"
)

// Cache keeps the most recent element-set downloads on disk so a session
// can start when the network source is unavailable.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache creates a Cache that stores files in dir and keeps at most maxFiles.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{
		dir:      dir,
		maxFiles: maxFiles,
	}
}

// Write saves data to a timestamped file and prunes old files beyond maxFiles.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	path := filepath.Join(c.dir, cacheFilePrefix+strconv.FormatInt(ts.Unix(), 10)+cacheFileSuffix)

	// Write to a temp file first so a crash never leaves a truncated newest file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming cache file: %w", err)
	}

	return c.prune()
}

// LoadLatest reads the newest cache file. It returns the data and the time
// the data was written.
func (c *Cache) LoadLatest() ([]byte, time.Time, error) {
	files, err := c.listFiles()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(files) == 0 {
		return nil, time.Time{}, fmt.Errorf("no cache files in %s", c.dir)
	}

	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, latest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
	}

	return data, latest.ts, nil
}

type cacheFile struct {
	name string
	ts   time.Time
}

// listFiles returns cache files sorted oldest first.
func (c *Cache) listFiles() ([]cacheFile, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var files []cacheFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, cacheFilePrefix) || !strings.HasSuffix(name, cacheFileSuffix) {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, cacheFilePrefix), cacheFileSuffix), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: name, ts: time.Unix(unix, 0)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})

	return files, nil
}

func (c *Cache) prune() error {
	files, err := c.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= c.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-c.maxFiles] {
		if err := os.Remove(filepath.Join(c.dir, f.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", f.name, err)
		}
	}
	return nil
}

// CachedSource wraps a Source with a disk Cache: successful loads are
// written to the cache, failed loads fall back to the newest cached copy.
type CachedSource struct {
	src    Source
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewCachedSource creates a CachedSource.
func NewCachedSource(src Source, cache *Cache, logger *slog.Logger) *CachedSource {
	return &CachedSource{
		src:    src,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

func (s *CachedSource) Name() string {
	return s.src.Name()
}

func (s *CachedSource) Load(ctx context.Context) ([]byte, error) {
	data, err := s.src.Load(ctx)
	if err == nil {
		if werr := s.cache.Write(data, s.now()); werr != nil {
			s.logger.Warn("element cache write failed", "error", werr)
		}
		return data, nil
	}

	cached, ts, cerr := s.cache.LoadLatest()
	if cerr != nil {
		return nil, fmt.Errorf("%w (cache fallback: %v)", err, cerr)
	}

	s.logger.Warn("element source failed, using cached copy",
		"source", s.src.Name(),
		"error", err,
		"cached_at", ts.UTC().Format(time.RFC3339),
	)
	return cached, nil
}
