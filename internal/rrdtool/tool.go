package rrdtool

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-rrd/internal/infotree"
	"github.com/nerrad567/gray-logic-rrd/internal/process"
)

// CommandRunner executes rrdtool with the given arguments.
// *process.Runner satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, args ...string) (process.Result, error)
}

// Logger defines the logging interface for the rrdtool package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Tool is a stateless typed front end for the rrdtool binary.
type Tool struct {
	runner CommandRunner
	parser infotree.Options
	logger Logger
}

// NewTool creates a Tool that runs commands through runner and parses info
// output with the given coercion options.
func NewTool(runner CommandRunner, parser infotree.Options) *Tool {
	return &Tool{
		runner: runner,
		parser: parser,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the tool.
func (t *Tool) SetLogger(logger Logger) {
	t.logger = logger
}

func (t *Tool) run(ctx context.Context, args ...string) (string, error) {
	res, err := t.runner.Run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("rrdtool %s: %w", args[0], err)
	}
	return res.Stdout, nil
}

// Create creates a new database file.
//
// Parameters:
//   - filename: path of the file to create
//   - definitions: DS: and RRA: definitions, passed through unchanged
//   - opts: start, step and overwrite behaviour
//
// Returns:
//   - error: ErrInvalidDefinition for a definition with an unknown prefix,
//     or the rrdtool failure (e.g. the file exists and Overwrite is false)
func (t *Tool) Create(ctx context.Context, filename string, definitions []string, opts CreateOptions) error {
	if len(definitions) == 0 {
		return fmt.Errorf("%w: no definitions", ErrInvalidDefinition)
	}
	for _, def := range definitions {
		if !strings.HasPrefix(def, "DS:") && !strings.HasPrefix(def, "RRA:") {
			return fmt.Errorf("%w: %q", ErrInvalidDefinition, def)
		}
	}

	args := []string{"create", filename}
	if opts.Start > 0 {
		args = append(args, "--start", strconv.FormatInt(opts.Start-1, 10))
	}
	if opts.Step > 0 {
		args = append(args, "--step", strconv.FormatInt(opts.Step, 10))
	}
	if !opts.Overwrite {
		args = append(args, "--no-overwrite")
	}
	if opts.TemplateFile != "" {
		args = append(args, "--template", opts.TemplateFile)
	}
	if opts.SourceFile != "" {
		args = append(args, "--source", opts.SourceFile)
	}
	args = append(args, definitions...)

	_, err := t.run(ctx, args...)
	if err == nil {
		t.logger.Info("database created", "filename", filename, "definitions", len(definitions))
	}
	return err
}

// Dump returns the XML dump of a database.
func (t *Tool) Dump(ctx context.Context, filename string) (string, error) {
	return t.run(ctx, "dump", filename)
}

// Fetch reads consolidated datapoints from one archive.
func (t *Tool) Fetch(ctx context.Context, filename string, cf ConsolidationFunction, opts FetchOptions) ([]Datapoint, error) {
	if !cf.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidConsolidation, cf)
	}

	args := []string{"fetch", filename, string(cf)}
	if opts.Start > 0 {
		args = append(args, "--start", strconv.FormatInt(opts.Start-1, 10))
	}
	if opts.End > 0 {
		args = append(args, "--end", strconv.FormatInt(opts.End-1, 10))
	}
	if opts.Resolution > 0 {
		args = append(args, "--resolution", strconv.FormatInt(opts.Resolution, 10))
	}
	if opts.AlignStart {
		args = append(args, "--align-start")
	}

	out, err := t.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	header, rows, err := parseTable(out)
	if err != nil {
		return nil, fmt.Errorf("rrdtool fetch: %w", err)
	}

	points := make([]Datapoint, 0, len(rows))
	for _, row := range rows {
		dp := Datapoint{Timestamp: row.ts, Values: make(map[string]float64, len(header))}
		for i, raw := range row.fields {
			if i >= len(header) {
				break
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(v) {
				continue
			}
			dp.Values[header[i]] = v
		}
		points = append(points, dp)
	}
	return points, nil
}

// InfoTree returns `rrdtool info` as a tree, with the ds mapping reshaped into
// a sequence whose entries carry their name.
func (t *Tool) InfoTree(ctx context.Context, filename string) (*infotree.Value, error) {
	out, err := t.run(ctx, "info", filename)
	if err != nil {
		return nil, err
	}
	tree, err := infotree.ParseWithOptions(out, t.parser)
	if err != nil {
		return nil, fmt.Errorf("rrdtool info: %w", err)
	}
	return reshapeDataSources(tree), nil
}

// Info returns `rrdtool info` as a typed struct.
func (t *Tool) Info(ctx context.Context, filename string) (*Info, error) {
	tree, err := t.InfoTree(ctx, filename)
	if err != nil {
		return nil, err
	}
	return infoFromTree(tree), nil
}

// Last returns the timestamp of the most recent update.
func (t *Tool) Last(ctx context.Context, filename string) (int64, error) {
	out, err := t.run(ctx, "last", filename)
	if err != nil {
		return 0, err
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: last: %q", ErrUnexpectedOutput, strings.TrimSpace(out))
	}
	return ts, nil
}

// LastUpdate returns the most recent raw value of every data source.
func (t *Tool) LastUpdate(ctx context.Context, filename string) (*LastUpdate, error) {
	out, err := t.run(ctx, "lastupdate", filename)
	if err != nil {
		return nil, err
	}

	header, rows, err := parseTable(out)
	if err != nil {
		return nil, fmt.Errorf("rrdtool lastupdate: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: lastupdate has no data row", ErrUnexpectedOutput)
	}

	row := rows[len(rows)-1]
	lu := &LastUpdate{Timestamp: row.ts, Values: make(map[string]Float, len(header))}
	for i, name := range header {
		v := math.NaN()
		if i < len(row.fields) {
			if f, err := strconv.ParseFloat(row.fields[i], 64); err == nil {
				v = f
			}
		}
		lu.Values[name] = Float(v)
	}
	return lu, nil
}

// Update writes one sample.
//
// Data sources are listed in the --template argument in name order. NaN
// values are written as unknown ("U").
func (t *Tool) Update(ctx context.Context, filename string, values map[string]float64, opts UpdateOptions) (UpdateResult, error) {
	if len(values) == 0 {
		return UpdateResult{}, ErrNoValues
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	sample := make([]string, 0, len(names)+1)
	if opts.Timestamp > 0 {
		sample = append(sample, strconv.FormatInt(opts.Timestamp, 10))
	} else {
		sample = append(sample, "N")
	}
	for _, name := range names {
		sample = append(sample, formatValue(values[name]))
	}

	cmd := "update"
	if opts.Verbose {
		cmd = "updatev"
	}
	args := []string{cmd, filename, "--template", strings.Join(names, ":")}
	if opts.SkipPastUpdates {
		args = append(args, "--skip-past-updates")
	}
	args = append(args, strings.Join(sample, ":"))

	out, err := t.run(ctx, args...)
	if err != nil {
		return UpdateResult{}, err
	}
	if !opts.Verbose {
		return UpdateResult{}, nil
	}
	return parseUpdatev(out), nil
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "U"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
