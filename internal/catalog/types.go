package catalog

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
)

// Update sources recorded with each applied update.
const (
	SourceMQTT = "mqtt"
	SourceAPI  = "api"
	SourceCLI  = "cli"
)

// Entry is the catalog row for one managed database.
type Entry struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Path          string       `json:"path"`
	Step          int64        `json:"step"`
	DataSources   []DataSource `json:"data_sources"`
	Archives      []Archive    `json:"archives"`
	LastUpdate    int64        `json:"last_update"`
	ExportedUntil int64        `json:"exported_until"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// DataSource is the static definition of one data source.
type DataSource struct {
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Heartbeat int64         `json:"heartbeat"`
	Min       rrdtool.Float `json:"min"`
	Max       rrdtool.Float `json:"max"`
}

// Archive is the static definition of one round robin archive.
type Archive struct {
	CF        string        `json:"cf"`
	Rows      int64         `json:"rows"`
	PDPPerRow int64         `json:"pdp_per_row"`
	XFF       rrdtool.Float `json:"xff"`
}

// DataSourceNames returns the data source names in file order.
func (e *Entry) DataSourceNames() []string {
	names := make([]string, len(e.DataSources))
	for i, ds := range e.DataSources {
		names[i] = ds.Name
	}
	return names
}

// Validate checks the fields Upsert requires.
func (e *Entry) Validate() error {
	if err := rrdtool.ValidateName(e.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	if e.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidEntry)
	}
	if e.Step < 0 {
		return fmt.Errorf("%w: negative step", ErrInvalidEntry)
	}
	return nil
}

// UpdateRecord is one applied update.
type UpdateRecord struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	Timestamp int64                    `json:"timestamp"`
	Values    map[string]rrdtool.Float `json:"values"`
	Source    string                   `json:"source"`
	CreatedAt time.Time                `json:"created_at"`
}

// EntryFromInfo builds an entry from parsed `rrdtool info` output.
// Volatile state (current row, cdp_prep, last_ds) is not kept.
func EntryFromInfo(name, path string, info *rrdtool.Info) *Entry {
	e := &Entry{
		Name:        name,
		Path:        path,
		DataSources: make([]DataSource, 0),
		Archives:    make([]Archive, 0),
	}
	if info == nil {
		return e
	}

	e.Step = info.Step
	e.LastUpdate = info.LastUpdate
	for _, ds := range info.DataSources {
		e.DataSources = append(e.DataSources, DataSource{
			Name:      ds.Name,
			Type:      ds.Type,
			Heartbeat: ds.MinimalHeartbeat,
			Min:       ds.Min,
			Max:       ds.Max,
		})
	}
	for _, rra := range info.Archives {
		e.Archives = append(e.Archives, Archive{
			CF:        rra.CF,
			Rows:      rra.Rows,
			PDPPerRow: rra.PDPPerRow,
			XFF:       rra.XFF,
		})
	}
	return e
}
