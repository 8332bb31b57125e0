package rrdtool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-rrd/internal/serialqueue"
)

// fileExt is the suffix of managed database files.
const fileExt = ".rrd"

// namePattern restricts managed names to a safe file-name alphabet.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateName reports whether name may be used as a managed database name.
func ValidateName(name string) error {
	if len(name) > 128 || !namePattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Manager owns the databases stored under one data directory.
type Manager struct {
	tool    *Tool
	dataDir string
	logger  Logger

	mu       sync.Mutex
	dbs      map[string]*Database
	creating map[string]chan struct{} // closed when the create finishes
	closed   bool
}

// NewManager creates a manager for dataDir. The directory is created on the
// first Create.
func NewManager(tool *Tool, dataDir string) *Manager {
	return &Manager{
		tool:    tool,
		dataDir: dataDir,
		logger:  noopLogger{},
		dbs:      make(map[string]*Database),
		creating: make(map[string]chan struct{}),
	}
}

// SetLogger sets the logger for the manager and its tool.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
	m.tool.SetLogger(logger)
}

// Tool returns the underlying command front end.
func (m *Manager) Tool() *Tool {
	return m.tool
}

// DataDir returns the managed directory.
func (m *Manager) DataDir() string {
	return m.dataDir
}

// Path returns the file path for name.
func (m *Manager) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(m.dataDir, name+fileExt), nil
}

// Create creates the database for name and returns the open handle.
//
// The name is reserved before rrdtool runs, so the lock is not held across
// the subprocess and at most one caller creates a given file. Get on the
// same name waits for the create to finish.
//
// Returns:
//   - error: ErrExists if the file exists or another create holds the name,
//     ErrInvalidName or ErrClosed
func (m *Manager) Create(ctx context.Context, name string, definitions []string, opts CreateOptions) (*Database, error) {
	path, err := m.Path(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	_, open := m.dbs[name]
	_, busy := m.creating[name]
	if open || busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	}
	done := make(chan struct{})
	m.creating[name] = done
	m.mu.Unlock()

	db, err := m.createFile(ctx, path, definitions, opts)

	m.mu.Lock()
	delete(m.creating, name)
	close(done)
	if err == nil {
		if m.closed {
			err = ErrClosed
		} else {
			m.dbs[name] = db
		}
	}
	m.mu.Unlock()

	if err != nil {
		if db != nil {
			db.Close(ctx) //nolint:errcheck // Manager closed during create
		}
		return nil, err
	}
	m.logger.Info("database ready", "name", name, "path", path)
	return db, nil
}

// createFile runs rrdtool create for a file that must not exist yet.
func (m *Manager) createFile(ctx context.Context, path string, definitions []string, opts CreateOptions) (*Database, error) {
	if err := os.MkdirAll(m.dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	}
	opts.Overwrite = false
	if err := m.tool.Create(ctx, path, definitions, opts); err != nil {
		return nil, err
	}
	return Open(ctx, m.tool, path)
}

// Get returns the open database for name, opening it on first use. A create
// in progress for name is waited for.
//
// Returns:
//   - error: ErrInvalidName, ErrNotFound, ErrClosed or the context's error
func (m *Manager) Get(ctx context.Context, name string) (*Database, error) {
	path, err := m.Path(name)
	if err != nil {
		return nil, err
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		if db, ok := m.dbs[name]; ok {
			m.mu.Unlock()
			return db, nil
		}
		done, busy := m.creating[name]
		if !busy {
			break
		}
		m.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	defer m.mu.Unlock()

	db, err := Open(ctx, m.tool, path)
	if err != nil {
		return nil, err
	}
	m.dbs[name] = db
	return db, nil
}

// Info opens name if needed and returns its typed description.
func (m *Manager) Info(ctx context.Context, name string) (*Info, error) {
	db, err := m.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return db.Info(ctx)
}

// Fetch opens name if needed and reads consolidated datapoints.
func (m *Manager) Fetch(ctx context.Context, name string, cf ConsolidationFunction, opts FetchOptions) ([]Datapoint, error) {
	db, err := m.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return db.Fetch(ctx, cf, opts)
}

// Update opens name if needed and writes one sample through its queue.
func (m *Manager) Update(ctx context.Context, name string, values map[string]float64, opts UpdateOptions) (UpdateResult, error) {
	db, err := m.Get(ctx, name)
	if err != nil {
		return UpdateResult{}, err
	}
	return db.Update(ctx, values, opts)
}

// Names lists managed databases found in the data directory, sorted.
func (m *Manager) Names() ([]string, error) {
	entries, err := os.ReadDir(m.dataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading data directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), fileExt)
		if ValidateName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// QueueStats returns the queue counters of every open database, sorted by name.
func (m *Manager) QueueStats() []serialqueue.Stats {
	m.mu.Lock()
	names := make([]string, 0, len(m.dbs))
	for name := range m.dbs {
		names = append(names, name)
	}
	dbs := make([]*Database, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		dbs = append(dbs, m.dbs[name])
	}
	m.mu.Unlock()

	stats := make([]serialqueue.Stats, 0, len(dbs))
	for _, db := range dbs {
		stats = append(stats, db.Stats())
	}
	return stats
}

// Close closes every open database, waiting for queued operations.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	dbs := m.dbs
	m.dbs = make(map[string]*Database)
	m.mu.Unlock()

	var errs []error
	for name, db := range dbs {
		if err := db.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
