package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-rrd/internal/catalog"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
)

// Default mirror settings.
const (
	defaultInterval    = 5 * time.Minute
	defaultConcurrency = 4
)

// ErrMissingDependency is returned by NewMirror when a collaborator is nil.
var ErrMissingDependency = errors.New("export: missing dependency")

// Catalog is the part of catalog.Repository the mirror uses.
type Catalog interface {
	List(ctx context.Context) ([]catalog.Entry, error)
	SetExportedUntil(ctx context.Context, name string, ts int64) error
}

// Fetcher reads consolidated rows. *rrdtool.Manager satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, name string, cf rrdtool.ConsolidationFunction, opts rrdtool.FetchOptions) ([]rrdtool.Datapoint, error)
}

// PointWriter stores rows. *influxdb.Client satisfies it.
type PointWriter interface {
	WriteSeries(ctx context.Context, name, cf string, samples []influxdb.Sample) error
}

// Logger is the logging surface used by the mirror.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config tunes a Mirror.
type Config struct {
	// Interval between passes in Run.
	Interval time.Duration

	// CF selects the archive to export.
	CF rrdtool.ConsolidationFunction

	// Concurrency caps files exported at once.
	Concurrency int
}

// FromConfig maps the export section of the config file.
func FromConfig(c config.ExportConfig) (Config, error) {
	cf, err := rrdtool.ParseConsolidationFunction(c.CF)
	if err != nil {
		return Config{}, fmt.Errorf("export: %w", err)
	}
	return Config{
		Interval:    time.Duration(c.Interval) * time.Second,
		CF:          cf,
		Concurrency: c.Concurrency,
	}, nil
}

// Result summarises one pass.
type Result struct {
	Files  int // files with new rows written
	Rows   int // rows handed to the writer
	Failed int // files that failed
}

// Mirror copies new rows of every catalogued file to a PointWriter.
type Mirror struct {
	catalog Catalog
	fetcher Fetcher
	writer  PointWriter
	cfg     Config
	logger  Logger
}

// NewMirror creates a mirror. Zero config fields take defaults
// (5 minutes, AVERAGE, 4 files at once).
func NewMirror(cat Catalog, fetcher Fetcher, writer PointWriter, cfg Config) (*Mirror, error) {
	if cat == nil || fetcher == nil || writer == nil {
		return nil, ErrMissingDependency
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.CF == "" {
		cfg.CF = rrdtool.Average
	}
	if !cfg.CF.Valid() {
		return nil, fmt.Errorf("export: %w: %q", rrdtool.ErrInvalidConsolidation, cfg.CF)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Mirror{
		catalog: cat,
		fetcher: fetcher,
		writer:  writer,
		cfg:     cfg,
		logger:  noopLogger{},
	}, nil
}

// SetLogger sets the logger for export passes.
func (m *Mirror) SetLogger(logger Logger) {
	m.logger = logger
}

// Run exports immediately and then on every interval until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	m.logger.Info("export mirror started", "interval", m.cfg.Interval, "cf", m.cfg.CF)
	m.pass(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("export mirror stopped")
			return
		case <-ticker.C:
			m.pass(ctx)
		}
	}
}

func (m *Mirror) pass(ctx context.Context) {
	res, err := m.RunOnce(ctx)
	if err != nil {
		m.logger.Error("export pass failed", "error", err)
		return
	}
	m.logger.Debug("export pass complete", "files", res.Files, "rows", res.Rows, "failed", res.Failed)
}

// RunOnce exports every catalogued file once.
//
// Per-file failures are logged and counted in Result.Failed; the returned
// error only reports a failure to list the catalog or a cancelled context.
func (m *Mirror) RunOnce(ctx context.Context) (Result, error) {
	entries, err := m.catalog.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing catalog: %w", err)
	}

	var (
		mu  sync.Mutex
		res Result
	)
	var g errgroup.Group
	g.SetLimit(m.cfg.Concurrency)

	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rows, err := m.exportFile(ctx, e)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				m.logger.Warn("export failed", "name", e.Name, "error", err)
				return nil
			}
			if rows > 0 {
				res.Files++
				res.Rows += rows
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Tasks never return errors

	return res, ctx.Err()
}

// exportFile writes rows of one file newer than its watermark and returns
// how many rows were written.
func (m *Mirror) exportFile(ctx context.Context, e catalog.Entry) (int, error) {
	opts := rrdtool.FetchOptions{}
	if e.ExportedUntil > 0 {
		opts.Start = e.ExportedUntil + 1
	}
	points, err := m.fetcher.Fetch(ctx, e.Name, m.cfg.CF, opts)
	if err != nil {
		return 0, fmt.Errorf("fetching: %w", err)
	}

	samples, until := pending(points, e.ExportedUntil)
	if len(samples) == 0 {
		return 0, nil
	}

	if err := m.writer.WriteSeries(ctx, e.Name, string(m.cfg.CF), samples); err != nil {
		return 0, err
	}
	if err := m.catalog.SetExportedUntil(ctx, e.Name, until); err != nil {
		return 0, fmt.Errorf("advancing watermark: %w", err)
	}
	return len(samples), nil
}

// pending keeps rows after the watermark that have at least one known value
// and returns the new watermark. Unknown trailing rows stay pending, since
// the current interval may not be consolidated yet.
func pending(points []rrdtool.Datapoint, watermark int64) ([]influxdb.Sample, int64) {
	samples := make([]influxdb.Sample, 0, len(points))
	until := watermark
	for _, p := range points {
		if p.Timestamp <= watermark || len(p.Values) == 0 {
			continue
		}
		samples = append(samples, influxdb.Sample{Timestamp: p.Timestamp, Values: p.Values})
		if p.Timestamp > until {
			until = p.Timestamp
		}
	}
	return samples, until
}
