package rrdtool

import (
	"math"
	"strconv"
	"time"
)

// ConsolidationFunction selects how an archive folds primary data points.
type ConsolidationFunction string

const (
	Average ConsolidationFunction = "AVERAGE"
	Min     ConsolidationFunction = "MIN"
	Max     ConsolidationFunction = "MAX"
	Last    ConsolidationFunction = "LAST"
)

// Valid reports whether cf is one rrdtool fetch accepts.
func (cf ConsolidationFunction) Valid() bool {
	switch cf {
	case Average, Min, Max, Last:
		return true
	}
	return false
}

// ParseConsolidationFunction validates a consolidation function name.
func ParseConsolidationFunction(s string) (ConsolidationFunction, error) {
	cf := ConsolidationFunction(s)
	if !cf.Valid() {
		return "", ErrInvalidConsolidation
	}
	return cf, nil
}

// Float is a float64 that encodes NaN and infinities as JSON null.
type Float float64

// IsNaN reports whether f is NaN.
func (f Float) IsNaN() bool { return math.IsNaN(float64(f)) }

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler. null decodes as NaN.
func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Info is the typed form of `rrdtool info`.
type Info struct {
	Filename    string           `json:"filename"`
	RRDVersion  string           `json:"rrd_version"`
	Step        int64            `json:"step"`
	LastUpdate  int64            `json:"last_update"`
	HeaderSize  int64            `json:"header_size"`
	DataSources []DataSourceInfo `json:"ds"`
	Archives    []ArchiveInfo    `json:"rra"`
}

// DataSourceNames returns data source names in file order.
func (i *Info) DataSourceNames() []string {
	names := make([]string, 0, len(i.DataSources))
	for _, ds := range i.DataSources {
		names = append(names, ds.Name)
	}
	return names
}

// DataSourceInfo describes one data source.
type DataSourceInfo struct {
	Name             string `json:"name"`
	Index            int    `json:"index"`
	Type             string `json:"type"`
	MinimalHeartbeat int64  `json:"minimal_heartbeat"`
	Min              Float  `json:"min"`
	Max              Float  `json:"max"`
	LastDS           string `json:"last_ds"`
	Value            Float  `json:"value"`
	UnknownSec       int64  `json:"unknown_sec"`
}

// ArchiveInfo describes one round robin archive.
type ArchiveInfo struct {
	CF        string    `json:"cf"`
	Rows      int64     `json:"rows"`
	CurRow    int64     `json:"cur_row"`
	PDPPerRow int64     `json:"pdp_per_row"`
	XFF       Float     `json:"xff"`
	CDPPrep   []CDPPrep `json:"cdp_prep"`
}

// CDPPrep is the consolidation scratch state of one archive/data source pair.
type CDPPrep struct {
	Value             Float `json:"value"`
	UnknownDatapoints int64 `json:"unknown_datapoints"`
}

// Datapoint is one fetched row. Values omits data sources that were unknown.
type Datapoint struct {
	Timestamp int64              `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// LastUpdate is the most recent value written to each data source.
// Unknown values are NaN.
type LastUpdate struct {
	Timestamp int64            `json:"timestamp"`
	Values    map[string]Float `json:"values"`
}

// UpdateResult is what `rrdtool updatev` reports. Plain updates return a
// zero value.
type UpdateResult struct {
	ReturnValue int             `json:"return_value"`
	Archives    []ArchiveUpdate `json:"archives,omitempty"`
}

// ArchiveUpdate is one consolidated row written by an update.
type ArchiveUpdate struct {
	Timestamp  int64  `json:"timestamp"`
	CF         string `json:"cf"`
	Archive    int    `json:"archive"`
	DataSource string `json:"ds"`
	Value      Float  `json:"value"`
}

// CreateOptions tune `rrdtool create`.
type CreateOptions struct {
	// Start is the first timestamp that may be written. Zero lets rrdtool choose.
	Start int64
	// Step is the base interval in seconds. Zero uses rrdtool's default.
	Step int64
	// Overwrite allows replacing an existing file.
	Overwrite bool
	// TemplateFile copies definitions from an existing file.
	TemplateFile string
	// SourceFile prefills data from an existing file.
	SourceFile string
}

// FetchOptions narrow `rrdtool fetch`. Zero fields are omitted.
type FetchOptions struct {
	Start      int64
	End        int64
	Resolution int64
	AlignStart bool
}

// UpdateOptions tune `rrdtool update`.
type UpdateOptions struct {
	// Timestamp of the sample. Zero means now ("N").
	Timestamp int64
	// Verbose runs updatev and parses its report.
	Verbose bool
	// SkipPastUpdates silently ignores samples older than the last update.
	SkipPastUpdates bool
}

// Now returns the current Unix time in seconds.
func Now() int64 {
	return time.Now().Unix()
}
