package rrdtool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-rrd/internal/infotree"
	"github.com/nerrad567/gray-logic-rrd/internal/serialqueue"
)

// Database is one rrdtool file whose operations run one at a time, in the
// order they were requested.
type Database struct {
	filename string
	tool     *Tool
	queue    *serialqueue.Queue
	logger   Logger

	mu    sync.RWMutex
	names []string
}

// Open wraps an existing file.
//
// The data source names are loaded by the first task on the file's queue, so
// Open returns immediately and later operations wait behind the load.
//
// Returns:
//   - *Database: ready for use
//   - error: ErrNotFound if filename does not exist
func Open(ctx context.Context, tool *Tool, filename string) (*Database, error) {
	if _, err := os.Stat(filename); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
		}
		return nil, fmt.Errorf("stat %s: %w", filename, err)
	}

	db := &Database{
		filename: filename,
		tool:     tool,
		queue:    serialqueue.New(filename),
		logger:   tool.logger,
	}
	db.queue.SetLogger(tool.logger)

	if _, err := serialqueue.Submit(ctx, db.queue, func(ctx context.Context) ([]string, error) {
		names, err := db.loadNames(ctx)
		if err != nil {
			db.logger.Warn("loading data sources failed", "filename", filename, "error", err)
		}
		return names, err
	}); err != nil {
		return nil, err
	}
	return db, nil
}

// CreateDatabase creates filename if it does not exist yet, then opens it.
// An existing file is opened as is.
func CreateDatabase(ctx context.Context, tool *Tool, filename string, definitions []string, opts CreateOptions) (*Database, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		if err := tool.Create(ctx, filename, definitions, opts); err != nil {
			return nil, err
		}
	}
	return Open(ctx, tool, filename)
}

// Filename returns the path of the file.
func (db *Database) Filename() string {
	return db.filename
}

// loadNames refreshes the cached data source names. Runs on the queue.
func (db *Database) loadNames(ctx context.Context) ([]string, error) {
	info, err := db.tool.Info(ctx, db.filename)
	if err != nil {
		return nil, err
	}
	names := info.DataSourceNames()

	db.mu.Lock()
	db.names = names
	db.mu.Unlock()
	return names, nil
}

// cachedNames returns the names loaded so far, loading them if the initial
// load failed. Runs on the queue.
func (db *Database) cachedNames(ctx context.Context) ([]string, error) {
	db.mu.RLock()
	names := db.names
	db.mu.RUnlock()
	if names != nil {
		return names, nil
	}
	return db.loadNames(ctx)
}

func (db *Database) wrap(err error) error {
	if errors.Is(err, serialqueue.ErrClosed) {
		return fmt.Errorf("%w: %s", ErrClosed, db.filename)
	}
	return err
}

// DataSources returns the file's data source names in file order.
func (db *Database) DataSources(ctx context.Context) ([]string, error) {
	names, err := serialqueue.Do(ctx, db.queue, db.cachedNames)
	if err != nil {
		return nil, db.wrap(err)
	}
	return append([]string(nil), names...), nil
}

// Dump returns the XML dump of the file.
func (db *Database) Dump(ctx context.Context) (string, error) {
	out, err := serialqueue.Do(ctx, db.queue, func(ctx context.Context) (string, error) {
		return db.tool.Dump(ctx, db.filename)
	})
	return out, db.wrap(err)
}

// Fetch reads datapoints from the archive using cf.
func (db *Database) Fetch(ctx context.Context, cf ConsolidationFunction, opts FetchOptions) ([]Datapoint, error) {
	points, err := serialqueue.Do(ctx, db.queue, func(ctx context.Context) ([]Datapoint, error) {
		return db.tool.Fetch(ctx, db.filename, cf, opts)
	})
	return points, db.wrap(err)
}

// Info returns the typed file description and refreshes cached names.
func (db *Database) Info(ctx context.Context) (*Info, error) {
	info, err := serialqueue.Do(ctx, db.queue, func(ctx context.Context) (*Info, error) {
		info, err := db.tool.Info(ctx, db.filename)
		if err != nil {
			return nil, err
		}
		db.mu.Lock()
		db.names = info.DataSourceNames()
		db.mu.Unlock()
		return info, nil
	})
	return info, db.wrap(err)
}

// InfoTree returns the untyped file description.
func (db *Database) InfoTree(ctx context.Context) (*infotree.Value, error) {
	tree, err := serialqueue.Do(ctx, db.queue, func(ctx context.Context) (*infotree.Value, error) {
		return db.tool.InfoTree(ctx, db.filename)
	})
	return tree, db.wrap(err)
}

// Last returns the timestamp of the most recent update.
func (db *Database) Last(ctx context.Context) (int64, error) {
	ts, err := serialqueue.Do(ctx, db.queue, func(ctx context.Context) (int64, error) {
		return db.tool.Last(ctx, db.filename)
	})
	return ts, db.wrap(err)
}

// LastUpdate returns the most recent value of each data source.
func (db *Database) LastUpdate(ctx context.Context) (*LastUpdate, error) {
	lu, err := serialqueue.Do(ctx, db.queue, func(ctx context.Context) (*LastUpdate, error) {
		return db.tool.LastUpdate(ctx, db.filename)
	})
	return lu, db.wrap(err)
}

// Update writes one sample after checking every key names a data source.
//
// Returns:
//   - UpdateResult: populated when opts.Verbose is set
//   - error: *UnknownDataSourceError listing every unknown key (nothing is written),
//     or the rrdtool failure
func (db *Database) Update(ctx context.Context, values map[string]float64, opts UpdateOptions) (UpdateResult, error) {
	res, err := serialqueue.Do(ctx, db.queue, func(ctx context.Context) (UpdateResult, error) {
		names, err := db.cachedNames(ctx)
		if err != nil {
			return UpdateResult{}, err
		}
		if unknown := unknownKeys(values, names); len(unknown) > 0 {
			return UpdateResult{}, &UnknownDataSourceError{Filename: db.filename, Names: unknown}
		}
		return db.tool.Update(ctx, db.filename, values, opts)
	})
	return res, db.wrap(err)
}

// Stats returns queue counters for the file.
func (db *Database) Stats() serialqueue.Stats {
	return db.queue.Stats()
}

// Close stops accepting operations and waits for queued ones to finish.
func (db *Database) Close(ctx context.Context) error {
	db.queue.Close()
	return db.queue.Idle(ctx)
}

func unknownKeys(values map[string]float64, names []string) []string {
	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}
	var unknown []string
	for k := range values {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}
