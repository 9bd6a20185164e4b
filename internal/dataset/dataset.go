// Package dataset owns the live (Repository, Router) snapshot and its
// replacement protocol: a new GTFS archive is built off to the side and
// published with one atomic pointer swap. Readers dereference once per query
// and keep their snapshot for the query's duration; old snapshots die when
// the garbage collector sees the last reference drop.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamespfennell/gtfs"

	"github.com/vincbro/blaise/internal/metrics"
	"github.com/vincbro/blaise/internal/raptor"
	"github.com/vincbro/blaise/internal/report"
	"github.com/vincbro/blaise/internal/repository"
)

var (
	// ErrRepositoryUnavailable means no dataset has been installed yet.
	ErrRepositoryUnavailable = errors.New("no dataset loaded")
	// ErrZipCorrupt means the archive could not be parsed as a GTFS
	// bundle.
	ErrZipCorrupt = errors.New("gtfs archive is not a readable zip bundle")
)

// Snapshot is one immutable generation of the dataset. Everything hanging
// off it is read-only after construction.
type Snapshot struct {
	Repo    *repository.Repository
	Router  *raptor.Router
	BuiltAt time.Time
}

// Options configure how snapshots are built.
type Options struct {
	// GtfsDataPath caches the live archive on disk; empty disables
	// caching.
	GtfsDataPath string
	// AllocatorCount sizes the router's scratch pool.
	AllocatorCount  int
	WalkSpeedMps    float64
	FootpathRadiusM float64
}

// Store publishes the current snapshot. Installs are serialized by a single
// writer lock; readers never take it, they only load the pointer.
type Store struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
	opts    Options
	logger  *slog.Logger
	client  *http.Client
}

// NewStore creates an empty store. Queries against it fail with
// ErrRepositoryUnavailable until the first successful install.
func NewStore(opts Options, logger *slog.Logger, client *http.Client) *Store {
	if opts.AllocatorCount < 1 {
		opts.AllocatorCount = 1
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Store{opts: opts, logger: logger, client: client}
}

// Current returns the live snapshot. The caller holds it for the duration
// of one query; a swap completing mid-query never switches it.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrRepositoryUnavailable
	}
	return snap, nil
}

// AgeSeconds reports the seconds since the last successful install.
func (s *Store) AgeSeconds() (uint64, error) {
	snap := s.current.Load()
	if snap == nil {
		return 0, ErrRepositoryUnavailable
	}
	return uint64(time.Since(snap.BuiltAt) / time.Second), nil
}

// InstallFromBytes parses and builds a new snapshot from a GTFS zip archive
// and publishes it. On failure the previous snapshot stays live.
func (s *Store) InstallFromBytes(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	static, err := gtfs.ParseStatic(data, gtfs.ParseStaticOptions{})
	if err != nil {
		metrics.DatasetBuilds.WithLabelValues("error").Inc()
		report.ReportError(err)
		return fmt.Errorf("%w: %v", ErrZipCorrupt, err)
	}

	repo, err := repository.Build(ctx, static, repository.BuildOptions{
		WalkSpeedMps:    s.opts.WalkSpeedMps,
		FootpathRadiusM: s.opts.FootpathRadiusM,
	}, s.logger)
	if err != nil {
		metrics.DatasetBuilds.WithLabelValues("error").Inc()
		report.ReportError(err)
		return fmt.Errorf("building repository: %w", err)
	}

	snap := &Snapshot{
		Repo:    repo,
		Router:  raptor.NewRouter(repo, s.opts.AllocatorCount),
		BuiltAt: time.Now(),
	}
	s.current.Store(snap)

	metrics.DatasetBuilds.WithLabelValues("ok").Inc()
	metrics.DatasetBuildDuration.Observe(time.Since(start).Seconds())
	metrics.DatasetStops.Set(float64(len(repo.Stops)))
	metrics.DatasetTrips.Set(float64(len(repo.Trips)))
	metrics.DatasetRaptorRoutes.Set(float64(len(repo.RaptorRoutes)))

	s.cacheArchive(data)
	s.logger.Info("dataset installed", "build_duration", time.Since(start))
	return nil
}

// InstallFromFile installs the archive cached on disk, typically at boot.
func (s *Store) InstallFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading gtfs archive: %w", err)
	}
	return s.InstallFromBytes(ctx, data)
}

// InstallFromURL fetches a GTFS archive and installs it. The body is read
// fully before any parsing so a broken connection cannot produce a partial
// install.
func (s *Store) InstallFromURL(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", url, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		report.ReportError(err)
		return fmt.Errorf("fetching gtfs archive from %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d fetching gtfs archive from %s", resp.StatusCode, url)
		report.ReportError(err)
		return err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading gtfs archive body: %w", err)
	}
	return s.InstallFromBytes(ctx, data)
}

// cacheArchive writes the live archive to gtfs_data_path so restarts can
// boot without refetching. Failures are logged, not fatal.
func (s *Store) cacheArchive(data []byte) {
	if s.opts.GtfsDataPath == "" {
		return
	}
	if err := os.WriteFile(s.opts.GtfsDataPath, data, 0o644); err != nil {
		s.logger.Warn("failed to cache gtfs archive", "path", s.opts.GtfsDataPath, "error", err)
	}
}
