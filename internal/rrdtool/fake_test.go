package rrdtool

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-rrd/internal/infotree"
	"github.com/nerrad567/gray-logic-rrd/internal/process"
)

const simpleInfo = `filename = "_simple.rrd"
rrd_version = "0003"
step = 1
last_update = 1405942010
header_size = 792
ds[test].index = 0
ds[test].type = "GAUGE"
ds[test].minimal_heartbeat = 1
ds[test].min = 0.0000000000e+00
ds[test].max = 1.0000000000e+02
ds[test].last_ds = "75"
ds[test].value = 0.0000000000e+00
ds[test].unknown_sec = 0
rra[0].cf = "AVERAGE"
rra[0].rows = 20
rra[0].cur_row = 11
rra[0].pdp_per_row = 1
rra[0].xff = 0.0000000000e+00
rra[0].cdp_prep[0].value = NaN
rra[0].cdp_prep[0].unknown_datapoints = 0
rra[1].cf = "MAX"
rra[1].rows = 1
rra[1].cur_row = 0
rra[1].pdp_per_row = 10
rra[1].xff = 0.0000000000e+00
rra[1].cdp_prep[0].value = NaN
rra[1].cdp_prep[0].unknown_datapoints = 0
`

// equateFloat treats two NaN Floats as equal.
var equateFloat = cmp.Comparer(func(a, b Float) bool {
	return a == b || (a.IsNaN() && b.IsNaN())
})

// fakeRunner answers rrdtool invocations from a handler and records them.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	handle func(args []string) (string, error)
}

func (f *fakeRunner) Run(_ context.Context, args ...string) (process.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	handle := f.handle
	f.mu.Unlock()

	if handle == nil {
		return process.Result{}, nil
	}
	out, err := handle(args)
	return process.Result{Stdout: out}, err
}

func (f *fakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// commands returns just the subcommand of each recorded call.
func (f *fakeRunner) commands() []string {
	calls := f.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c[0])
	}
	return out
}

// newSimpleRunner serves simpleInfo for info and empty output otherwise.
func newSimpleRunner() *fakeRunner {
	return &fakeRunner{handle: func(args []string) (string, error) {
		switch args[0] {
		case "info":
			return simpleInfo, nil
		case "last":
			return "1405942010\n", nil
		case "create":
			return "", os.WriteFile(args[1], []byte("rrd"), 0o600)
		}
		return "", nil
	}}
}

func newTestTool(r *fakeRunner) *Tool {
	return NewTool(r, infotree.DefaultOptions())
}

// touch creates an empty file standing in for a database.
func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("rrd"), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
