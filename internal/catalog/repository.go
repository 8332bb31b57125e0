package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
)

// History limits for ListUpdates.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Repository defines the interface for catalog persistence operations.
type Repository interface {
	// Upsert inserts the entry or refreshes the stored shape of an existing
	// entry with the same name. ID, CreatedAt and ExportedUntil of an
	// existing entry are preserved and copied back into e.
	Upsert(ctx context.Context, e *Entry) error

	// GetByName returns the entry for name.
	// Returns ErrNotFound if the entry does not exist.
	GetByName(ctx context.Context, name string) (*Entry, error)

	// List returns all entries ordered by name.
	List(ctx context.Context) ([]Entry, error)

	// Delete removes an entry and its update history.
	// Returns ErrNotFound if the entry does not exist.
	Delete(ctx context.Context, name string) error

	// SetLastUpdate records the timestamp of the newest applied update.
	// Older timestamps never move the value backwards.
	SetLastUpdate(ctx context.Context, name string, ts int64) error

	// SetExportedUntil records the newest timestamp mirrored to InfluxDB.
	SetExportedUntil(ctx context.Context, name string, ts int64) error

	// RecordUpdate appends an applied update to the history.
	// Returns ErrNotFound if the entry does not exist.
	RecordUpdate(ctx context.Context, rec *UpdateRecord) error

	// ListUpdates returns the most recent updates for name, newest first.
	// limit <= 0 selects the default; values above the maximum are clamped.
	ListUpdates(ctx context.Context, name string, limit int) ([]UpdateRecord, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts or refreshes an entry.
func (r *SQLiteRepository) Upsert(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	dsJSON, err := json.Marshal(nonNil(e.DataSources))
	if err != nil {
		return fmt.Errorf("marshalling data sources: %w", err)
	}
	rraJSON, err := json.Marshal(nonNil(e.Archives))
	if err != nil {
		return fmt.Errorf("marshalling archives: %w", err)
	}

	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO rrd_files (
			id, name, path, step, data_sources, archives,
			last_update, exported_until, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			step = excluded.step,
			data_sources = excluded.data_sources,
			archives = excluded.archives,
			last_update = MAX(rrd_files.last_update, excluded.last_update),
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		id, e.Name, e.Path, e.Step, string(dsJSON), string(rraJSON),
		e.LastUpdate, e.ExportedUntil, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting entry: %w", err)
	}

	stored, err := r.GetByName(ctx, e.Name)
	if err != nil {
		return err
	}
	*e = *stored
	return nil
}

// GetByName returns the entry for name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Entry, error) {
	query := `
		SELECT id, name, path, step, data_sources, archives,
			last_update, exported_until, created_at, updated_at
		FROM rrd_files
		WHERE name = ?`

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying entry by name: %w", err)
	}
	return e, nil
}

// List returns all entries ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	query := `
		SELECT id, name, path, step, data_sources, archives,
			last_update, exported_until, created_at, updated_at
		FROM rrd_files
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// Delete removes an entry. Its history goes with it through ON DELETE CASCADE.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM rrd_files WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	return expectOne(result)
}

// SetLastUpdate advances the last update timestamp.
func (r *SQLiteRepository) SetLastUpdate(ctx context.Context, name string, ts int64) error {
	query := `
		UPDATE rrd_files
		SET last_update = MAX(last_update, ?), updated_at = ?
		WHERE name = ?`

	result, err := r.db.ExecContext(ctx, query, ts, time.Now().UTC().Format(time.RFC3339), name)
	if err != nil {
		return fmt.Errorf("updating last update: %w", err)
	}
	return expectOne(result)
}

// SetExportedUntil records the export watermark.
func (r *SQLiteRepository) SetExportedUntil(ctx context.Context, name string, ts int64) error {
	query := `
		UPDATE rrd_files
		SET exported_until = ?, updated_at = ?
		WHERE name = ?`

	result, err := r.db.ExecContext(ctx, query, ts, time.Now().UTC().Format(time.RFC3339), name)
	if err != nil {
		return fmt.Errorf("updating export watermark: %w", err)
	}
	return expectOne(result)
}

// RecordUpdate appends an applied update. ID and CreatedAt are filled in
// when empty.
func (r *SQLiteRepository) RecordUpdate(ctx context.Context, rec *UpdateRecord) error {
	if rec.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEntry)
	}
	if len(rec.Values) == 0 {
		return fmt.Errorf("%w: no values", ErrInvalidEntry)
	}

	payload, err := json.Marshal(rec.Values)
	if err != nil {
		return fmt.Errorf("marshalling values: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO rrd_updates (id, name, timestamp, payload, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.Timestamp, string(payload), rec.Source,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("recording update: %w", err)
	}
	return nil
}

// ListUpdates returns recent updates for name, newest first.
func (r *SQLiteRepository) ListUpdates(ctx context.Context, name string, limit int) ([]UpdateRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `
		SELECT id, name, timestamp, payload, source, created_at
		FROM rrd_updates
		WHERE name = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying updates: %w", err)
	}
	defer rows.Close()

	records := make([]UpdateRecord, 0)
	for rows.Next() {
		var rec UpdateRecord
		var payload, createdAt string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Timestamp, &payload, &rec.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning update: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Values); err != nil {
			return nil, fmt.Errorf("unmarshalling update payload: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating updates: %w", err)
	}
	return records, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(scanner rowScanner) (*Entry, error) {
	var e Entry
	var dsJSON, rraJSON, createdAt, updatedAt string

	err := scanner.Scan(
		&e.ID, &e.Name, &e.Path, &e.Step, &dsJSON, &rraJSON,
		&e.LastUpdate, &e.ExportedUntil, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(dsJSON), &e.DataSources); err != nil {
		return nil, fmt.Errorf("unmarshalling data sources: %w", err)
	}
	if err := json.Unmarshal([]byte(rraJSON), &e.Archives); err != nil {
		return nil, fmt.Errorf("unmarshalling archives: %w", err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &e, nil
}

func expectOne(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// isForeignKeyError checks if an error is a SQLite foreign key violation.
func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// Values converts applied update values into the stored form.
func Values(values map[string]float64) map[string]rrdtool.Float {
	out := make(map[string]rrdtool.Float, len(values))
	for k, v := range values {
		out[k] = rrdtool.Float(v)
	}
	return out
}
