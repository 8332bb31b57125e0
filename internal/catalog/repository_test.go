package catalog

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
	_ "github.com/nerrad567/gray-logic-rrd/migrations"
)

// setupTestRepo opens a migrated in-memory catalog.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func testEntry(name string) *Entry {
	return &Entry{
		Name: name,
		Path: "/var/lib/rrdcore/" + name + ".rrd",
		Step: 300,
		DataSources: []DataSource{
			{Name: "watts", Type: "GAUGE", Heartbeat: 600, Min: 0, Max: rrdtool.Float(math.NaN())},
		},
		Archives: []Archive{
			{CF: "AVERAGE", Rows: 288, PDPPerRow: 1, XFF: 0.5},
		},
		LastUpdate: 1405942000,
	}
}

// equateFloat compares Float values with NaN equal to NaN.
var equateFloat = cmp.Comparer(func(a, b rrdtool.Float) bool {
	if a.IsNaN() || b.IsNaN() {
		return a.IsNaN() && b.IsNaN()
	}
	return a == b
})

func TestUpsert_Insert(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	e := testEntry("power")
	if err := repo.Upsert(ctx, e); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Errorf("Upsert() did not fill ID/CreatedAt: %+v", e)
	}

	got, err := repo.GetByName(ctx, "power")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if diff := cmp.Diff(e, got, equateFloat); diff != "" {
		t.Errorf("GetByName() mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsert_PreservesIdentityAndWatermark(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first := testEntry("power")
	if err := repo.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.SetExportedUntil(ctx, "power", 1405941700); err != nil {
		t.Fatalf("SetExportedUntil() error = %v", err)
	}

	second := testEntry("power")
	second.Step = 60
	second.LastUpdate = 1 // older than stored
	second.DataSources = append(second.DataSources, DataSource{Name: "volts", Type: "GAUGE", Heartbeat: 120})
	if err := repo.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("ID = %q, want %q", second.ID, first.ID)
	}
	if second.Step != 60 {
		t.Errorf("Step = %d, want 60", second.Step)
	}
	if second.LastUpdate != 1405942000 {
		t.Errorf("LastUpdate = %d, want 1405942000", second.LastUpdate)
	}
	if second.ExportedUntil != 1405941700 {
		t.Errorf("ExportedUntil = %d, want 1405941700", second.ExportedUntil)
	}
	if diff := cmp.Diff([]string{"watts", "volts"}, second.DataSourceNames()); diff != "" {
		t.Errorf("DataSourceNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsert_Invalid(t *testing.T) {
	repo := setupTestRepo(t)

	tests := []struct {
		name   string
		modify func(*Entry)
	}{
		{"empty name", func(e *Entry) { e.Name = "" }},
		{"bad name", func(e *Entry) { e.Name = "../etc" }},
		{"no path", func(e *Entry) { e.Path = "" }},
		{"negative step", func(e *Entry) { e.Step = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEntry("power")
			tt.modify(e)
			if err := repo.Upsert(context.Background(), e); !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Upsert() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestGetByName_NotFound(t *testing.T) {
	repo := setupTestRepo(t)
	if _, err := repo.GetByName(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByName() error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	empty, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("List() on empty catalog = %v, want empty slice", empty)
	}

	for _, name := range []string{"temp", "power", "humidity"} {
		if err := repo.Upsert(ctx, testEntry(name)); err != nil {
			t.Fatalf("Upsert(%s) error = %v", name, err)
		}
	}

	entries, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{"humidity", "power", "temp"}, names); diff != "" {
		t.Errorf("List() names mismatch (-want +got):\n%s", diff)
	}
}

func TestDelete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.Upsert(ctx, testEntry("power")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	rec := &UpdateRecord{Name: "power", Timestamp: 1405942300, Values: Values(map[string]float64{"watts": 1}), Source: SourceCLI}
	if err := repo.RecordUpdate(ctx, rec); err != nil {
		t.Fatalf("RecordUpdate() error = %v", err)
	}

	if err := repo.Delete(ctx, "power"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByName(ctx, "power"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByName() after Delete error = %v, want ErrNotFound", err)
	}
	history, err := repo.ListUpdates(ctx, "power", 0)
	if err != nil {
		t.Fatalf("ListUpdates() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history after Delete = %d rows, want 0", len(history))
	}

	if err := repo.Delete(ctx, "power"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestSetLastUpdate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.Upsert(ctx, testEntry("power")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	tests := []struct {
		name string
		ts   int64
		want int64
	}{
		{"advances", 1405942600, 1405942600},
		{"never moves back", 1405942300, 1405942600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.SetLastUpdate(ctx, "power", tt.ts); err != nil {
				t.Fatalf("SetLastUpdate() error = %v", err)
			}
			got, err := repo.GetByName(ctx, "power")
			if err != nil {
				t.Fatalf("GetByName() error = %v", err)
			}
			if got.LastUpdate != tt.want {
				t.Errorf("LastUpdate = %d, want %d", got.LastUpdate, tt.want)
			}
		})
	}

	if err := repo.SetLastUpdate(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetLastUpdate(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSetExportedUntil_NotFound(t *testing.T) {
	repo := setupTestRepo(t)
	if err := repo.SetExportedUntil(context.Background(), "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetExportedUntil() error = %v, want ErrNotFound", err)
	}
}

func TestRecordUpdate_Validation(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *UpdateRecord
		want error
	}{
		{"no name", &UpdateRecord{Values: Values(map[string]float64{"watts": 1})}, ErrInvalidEntry},
		{"no values", &UpdateRecord{Name: "power"}, ErrInvalidEntry},
		{"unknown entry", &UpdateRecord{Name: "missing", Values: Values(map[string]float64{"watts": 1})}, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.RecordUpdate(ctx, tt.rec); !errors.Is(err, tt.want) {
				t.Errorf("RecordUpdate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestListUpdates(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.Upsert(ctx, testEntry("power")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 3 {
		rec := &UpdateRecord{
			Name:      "power",
			Timestamp: 1405942000 + int64(i)*300,
			Values:    map[string]rrdtool.Float{"watts": rrdtool.Float(i), "volts": rrdtool.Float(math.NaN())},
			Source:    SourceMQTT,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.RecordUpdate(ctx, rec); err != nil {
			t.Fatalf("RecordUpdate() error = %v", err)
		}
	}

	got, err := repo.ListUpdates(ctx, "power", 2)
	if err != nil {
		t.Fatalf("ListUpdates() error = %v", err)
	}
	want := []UpdateRecord{
		{
			Name:      "power",
			Timestamp: 1405942600,
			Values:    map[string]rrdtool.Float{"watts": 2, "volts": rrdtool.Float(math.NaN())},
			Source:    SourceMQTT,
			CreatedAt: base.Add(2 * time.Second),
		},
		{
			Name:      "power",
			Timestamp: 1405942300,
			Values:    map[string]rrdtool.Float{"watts": 1, "volts": rrdtool.Float(math.NaN())},
			Source:    SourceMQTT,
			CreatedAt: base.Add(time.Second),
		},
	}
	if diff := cmp.Diff(want, got, equateFloat, cmpopts.IgnoreFields(UpdateRecord{}, "ID")); diff != "" {
		t.Errorf("ListUpdates() mismatch (-want +got):\n%s", diff)
	}
}

func TestListUpdates_Limits(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.Upsert(ctx, testEntry("power")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	for i := range maxHistoryLimit + 5 {
		rec := &UpdateRecord{Name: "power", Timestamp: int64(i + 1), Values: Values(map[string]float64{"watts": 1})}
		if err := repo.RecordUpdate(ctx, rec); err != nil {
			t.Fatalf("RecordUpdate() error = %v", err)
		}
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, defaultHistoryLimit},
		{-1, defaultHistoryLimit},
		{10, 10},
		{maxHistoryLimit + 100, maxHistoryLimit},
	}
	for _, tt := range tests {
		got, err := repo.ListUpdates(ctx, "power", tt.limit)
		if err != nil {
			t.Fatalf("ListUpdates(%d) error = %v", tt.limit, err)
		}
		if len(got) != tt.want {
			t.Errorf("ListUpdates(%d) returned %d rows, want %d", tt.limit, len(got), tt.want)
		}
	}
}

func TestEntryFromInfo(t *testing.T) {
	info := &rrdtool.Info{
		Filename:   "/data/power.rrd",
		Step:       300,
		LastUpdate: 1405942000,
		DataSources: []rrdtool.DataSourceInfo{
			{Name: "watts", Type: "GAUGE", MinimalHeartbeat: 600, Min: 0, Max: rrdtool.Float(math.NaN()), LastDS: "12"},
		},
		Archives: []rrdtool.ArchiveInfo{
			{CF: "AVERAGE", Rows: 288, CurRow: 17, PDPPerRow: 1, XFF: 0.5},
			{CF: "MAX", Rows: 24, PDPPerRow: 12, XFF: 0.5},
		},
	}

	got := EntryFromInfo("power", "/data/power.rrd", info)
	want := &Entry{
		Name:       "power",
		Path:       "/data/power.rrd",
		Step:       300,
		LastUpdate: 1405942000,
		DataSources: []DataSource{
			{Name: "watts", Type: "GAUGE", Heartbeat: 600, Min: 0, Max: rrdtool.Float(math.NaN())},
		},
		Archives: []Archive{
			{CF: "AVERAGE", Rows: 288, PDPPerRow: 1, XFF: 0.5},
			{CF: "MAX", Rows: 24, PDPPerRow: 12, XFF: 0.5},
		},
	}
	if diff := cmp.Diff(want, got, equateFloat); diff != "" {
		t.Errorf("EntryFromInfo() mismatch (-want +got):\n%s", diff)
	}

	if e := EntryFromInfo("power", "/data/power.rrd", nil); e.DataSources == nil || e.Archives == nil {
		t.Error("EntryFromInfo(nil) should return empty slices")
	}
}
