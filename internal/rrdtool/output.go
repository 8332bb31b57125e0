package rrdtool

import (
	"bufio"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-rrd/internal/infotree"
)

// tableRow is one "<timestamp>: v v v" line of fetch or lastupdate output.
type tableRow struct {
	ts     int64
	fields []string
}

// parseTable reads the layout shared by fetch and lastupdate: a header line of
// data source names, a blank line, then timestamped rows.
func parseTable(out string) ([]string, []tableRow, error) {
	var header []string
	var rows []tableRow

	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if header == nil {
			header = strings.Fields(line)
			continue
		}

		tsPart, rest, ok := strings.Cut(line, ":")
		if !ok {
			return nil, nil, fmt.Errorf("%w: row %q", ErrUnexpectedOutput, line)
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(tsPart), 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: timestamp %q", ErrUnexpectedOutput, tsPart)
		}
		rows = append(rows, tableRow{ts: ts, fields: strings.Fields(rest)})
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if header == nil {
		return nil, nil, fmt.Errorf("%w: missing header", ErrUnexpectedOutput)
	}
	return header, rows, nil
}

// updatevLine matches "[1405942010]RRA[AVERAGE][1]DS[test] = 7.5000000000e+01".
var updatevLine = regexp.MustCompile(`^\[(\d+)\]RRA\[(\w+)\]\[(\d+)\]DS\[([^\]]+)\] = (\S+)$`)

func parseUpdatev(out string) UpdateResult {
	var res UpdateResult
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "return_value = "); ok {
			res.ReturnValue, _ = strconv.Atoi(strings.TrimSpace(v))
			continue
		}
		m := updatevLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts, _ := strconv.ParseInt(m[1], 10, 64)
		archive, _ := strconv.Atoi(m[3])
		value, err := strconv.ParseFloat(m[5], 64)
		if err != nil {
			value = math.NaN()
		}
		res.Archives = append(res.Archives, ArchiveUpdate{
			Timestamp:  ts,
			CF:         m[2],
			Archive:    archive,
			DataSource: m[4],
			Value:      Float(value),
		})
	}
	return res
}

// reshapeDataSources replaces the name-keyed ds mapping with a sequence in
// discovery order, each entry gaining a leading "name" key.
func reshapeDataSources(tree *infotree.Value) *infotree.Value {
	ds := tree.Get("ds")
	if ds.Kind() != infotree.KindMap {
		return tree
	}

	seq := infotree.NewSeq(0)
	for _, name := range ds.Keys() {
		src := ds.Get(name)
		entry := infotree.NewMap()
		entry.Set("name", infotree.String(name))
		for _, k := range src.Keys() {
			if k == "name" {
				continue
			}
			entry.Set(k, src.Get(k))
		}
		seq.Append(entry)
	}
	tree.Set("ds", seq)
	return tree
}

// infoFromTree maps a reshaped info tree onto Info. Missing fields stay zero.
func infoFromTree(tree *infotree.Value) *Info {
	info := &Info{
		Filename:   tree.Get("filename").Str(),
		RRDVersion: tree.Get("rrd_version").Str(),
		Step:       toInt(tree.Get("step")),
		LastUpdate: toInt(tree.Get("last_update")),
		HeaderSize: toInt(tree.Get("header_size")),
	}

	ds := tree.Get("ds")
	for i := 0; i < ds.Len(); i++ {
		d := ds.Index(i)
		if d == nil {
			continue
		}
		index := i
		if v := d.Get("index"); v.Kind() == infotree.KindNumber {
			index = int(toInt(v))
		}
		info.DataSources = append(info.DataSources, DataSourceInfo{
			Name:             d.Get("name").Str(),
			Index:            index,
			Type:             d.Get("type").Str(),
			MinimalHeartbeat: toInt(d.Get("minimal_heartbeat")),
			Min:              toFloat(d.Get("min")),
			Max:              toFloat(d.Get("max")),
			LastDS:           d.Get("last_ds").Str(),
			Value:            toFloat(d.Get("value")),
			UnknownSec:       toInt(d.Get("unknown_sec")),
		})
	}

	rra := tree.Get("rra")
	for i := 0; i < rra.Len(); i++ {
		r := rra.Index(i)
		if r == nil {
			continue
		}
		a := ArchiveInfo{
			CF:        r.Get("cf").Str(),
			Rows:      toInt(r.Get("rows")),
			CurRow:    toInt(r.Get("cur_row")),
			PDPPerRow: toInt(r.Get("pdp_per_row")),
			XFF:       toFloat(r.Get("xff")),
		}
		prep := r.Get("cdp_prep")
		for j := 0; j < prep.Len(); j++ {
			p := prep.Index(j)
			a.CDPPrep = append(a.CDPPrep, CDPPrep{
				Value:             toFloat(p.Get("value")),
				UnknownDatapoints: toInt(p.Get("unknown_datapoints")),
			})
		}
		info.Archives = append(info.Archives, a)
	}
	return info
}

func toInt(v *infotree.Value) int64 {
	f := v.Num()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

func toFloat(v *infotree.Value) Float {
	return Float(v.Num())
}
