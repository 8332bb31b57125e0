package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rrd/internal/process"
	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
)

const testInfo = `filename = "power.rrd"
rrd_version = "0003"
step = 300
last_update = 1405942010
header_size = 792
ds[watts].index = 0
ds[watts].type = "GAUGE"
ds[watts].minimal_heartbeat = 600
ds[watts].min = 0.0000000000e+00
ds[watts].max = NaN
ds[watts].last_ds = "75"
ds[watts].value = 0.0000000000e+00
ds[watts].unknown_sec = 0
rra[0].cf = "AVERAGE"
rra[0].rows = 288
rra[0].cur_row = 11
rra[0].pdp_per_row = 1
rra[0].xff = 5.0000000000e-01
rra[0].cdp_prep[0].value = NaN
rra[0].cdp_prep[0].unknown_datapoints = 0
`

// fakeRunner answers rrdtool invocations with canned output.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, args ...string) (process.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	switch args[0] {
	case "info":
		return process.Result{Stdout: testInfo}, nil
	case "last":
		return process.Result{Stdout: "1405942010\n"}, nil
	case "lastupdate":
		return process.Result{Stdout: " watts\n\n1405942010: 75\n"}, nil
	case "fetch":
		return process.Result{Stdout: "                               watts\n\n1405942200: 1.2500000000e+02\n1405942500: -nan\n"}, nil
	case "dump":
		return process.Result{Stdout: "<rrd><version>0003</version></rrd>\n"}, nil
	case "create":
		return process.Result{}, os.WriteFile(args[1], []byte("rrd"), 0o600)
	}
	return process.Result{}, nil
}

func (f *fakeRunner) last(cmd string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i][0] == cmd {
			return f.calls[i]
		}
	}
	return nil
}

type testEnv struct {
	dir        string
	dataDir    string
	dbPath     string
	configPath string
	runner     *fakeRunner
}

// newTestEnv writes a config file into a temp dir and swaps in a fake rrdtool.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		dataDir:    filepath.Join(dir, "rrd"),
		dbPath:     filepath.Join(dir, "rrdcore.db"),
		configPath: filepath.Join(dir, "config.yaml"),
		runner:     &fakeRunner{},
	}
	content := "rrdtool:\n  data_dir: " + env.dataDir + "\n" +
		"database:\n  path: " + env.dbPath + "\n" +
		"logging:\n  level: error\n  format: text\n"
	if err := os.WriteFile(env.configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	original := newCommandRunner
	newCommandRunner = func(*config.Config) rrdtool.CommandRunner { return env.runner }
	t.Cleanup(func() { newCommandRunner = original })
	return env
}

// touch creates a stand-in database file.
func (e *testEnv) touch(t *testing.T, name string) {
	t.Helper()
	if err := os.MkdirAll(e.dataDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.dataDir, name+".rrd"), []byte("rrd"), 0o600); err != nil {
		t.Fatal(err)
	}
}

// execute runs the root command and returns stdout.
func (e *testEnv) execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// =============================================================================
// Configuration Path Tests
// =============================================================================

func TestConfigPath(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("RRDCORE_CONFIG", "")
		if got := (&cliOptions{}).path(); got != defaultConfigPath {
			t.Errorf("path() = %q, want %q", got, defaultConfigPath)
		}
	})
	t.Run("env", func(t *testing.T) {
		t.Setenv("RRDCORE_CONFIG", "/custom/config.yaml")
		if got := (&cliOptions{}).path(); got != "/custom/config.yaml" {
			t.Errorf("path() = %q", got)
		}
	})
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("RRDCORE_CONFIG", "/custom/config.yaml")
		if got := (&cliOptions{configPath: "/flag.yaml"}).path(); got != "/flag.yaml" {
			t.Errorf("path() = %q", got)
		}
	})
}

// =============================================================================
// Service Tests
// =============================================================================

func TestServe_InvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("RRDCORE_JWT_SECRET", "")

	// The API is enabled by default and needs a JWT secret.
	_, err := env.execute(t, "", "serve")
	if err == nil || !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Errorf("serve error = %v, want jwt secret validation failure", err)
	}
}

func TestRun_StartAndShutdown(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := config.LoadLocal(env.configPath)
	if err != nil {
		t.Fatalf("LoadLocal() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
	if _, err := os.Stat(env.dbPath); err != nil {
		t.Errorf("catalog database not created: %v", err)
	}
}

// =============================================================================
// Command Tests
// =============================================================================

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.execute(t, "", "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "rrdcore "+version) {
		t.Errorf("output = %q", out)
	}
}

func TestHashPassword(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "s3cret-passphrase\n", "hash-password")
	if err != nil {
		t.Fatalf("hash-password error = %v", err)
	}
	if !strings.HasPrefix(out, "$argon2id$") {
		t.Errorf("output = %q, want PHC string", out)
	}

	if _, err := env.execute(t, "", "hash-password"); !errors.Is(err, errNoPassword) {
		t.Errorf("empty stdin error = %v, want errNoPassword", err)
	}
}

func TestCreate(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "", "create", "power", "--step", "300",
		"DS:watts:GAUGE:600:0:U", "RRA:AVERAGE:0.5:1:288")
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	want := filepath.Join(env.dataDir, "power.rrd")
	if strings.TrimSpace(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	args := env.runner.last("create")
	if args == nil || !strings.Contains(strings.Join(args, " "), "DS:watts:GAUGE:600:0:U") {
		t.Errorf("create args = %v", args)
	}
}

func TestCreate_ExistingFileIsOpened(t *testing.T) {
	env := newTestEnv(t)
	env.touch(t, "power")

	out, err := env.execute(t, "", "create", "power", "DS:watts:GAUGE:600:0:U", "RRA:AVERAGE:0.5:1:288")
	if err != nil {
		t.Fatalf("create error = %v", err)
	}
	if want := filepath.Join(env.dataDir, "power.rrd"); strings.TrimSpace(out) != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if args := env.runner.last("create"); args != nil {
		t.Errorf("rrdtool create ran for an existing file: %v", args)
	}
}

func TestInfo(t *testing.T) {
	env := newTestEnv(t)
	env.touch(t, "power")

	out, err := env.execute(t, "", "info", "power")
	if err != nil {
		t.Fatalf("info error = %v", err)
	}
	var info rrdtool.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if info.Step != 300 || len(info.DataSources) != 1 || info.DataSources[0].Name != "watts" {
		t.Errorf("info = %+v", info)
	}

	out, err = env.execute(t, "", "info", "power", "--raw")
	if err != nil {
		t.Fatalf("info --raw error = %v", err)
	}
	if !strings.Contains(out, `"rrd_version"`) {
		t.Errorf("raw output = %q", out)
	}
}

func TestInfo_NotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.execute(t, "", "info", "missing"); !errors.Is(err, rrdtool.ErrNotFound) {
		t.Errorf("info error = %v, want ErrNotFound", err)
	}
}

func TestFetch(t *testing.T) {
	env := newTestEnv(t)
	env.touch(t, "power")

	out, err := env.execute(t, "", "fetch", "power", "--cf", "average", "--start", "1405942000", "--end", "1405942600")
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}
	var rows []rrdtool.Datapoint
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	want := []rrdtool.Datapoint{
		{Timestamp: 1405942200, Values: map[string]float64{"watts": 125}},
		{Timestamp: 1405942500, Values: map[string]float64{}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if args := env.runner.last("fetch"); args == nil || args[2] != "AVERAGE" {
		t.Errorf("fetch args = %v", args)
	}

	if _, err := env.execute(t, "", "fetch", "power", "--cf", "median"); !errors.Is(err, rrdtool.ErrInvalidConsolidation) {
		t.Errorf("bad cf error = %v, want ErrInvalidConsolidation", err)
	}
}

func TestLastAndLastUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.touch(t, "power")

	out, err := env.execute(t, "", "last", "power")
	if err != nil {
		t.Fatalf("last error = %v", err)
	}
	if strings.TrimSpace(out) != "1405942010" {
		t.Errorf("last = %q", out)
	}

	out, err = env.execute(t, "", "lastupdate", "power")
	if err != nil {
		t.Fatalf("lastupdate error = %v", err)
	}
	var lu rrdtool.LastUpdate
	if err := json.Unmarshal([]byte(out), &lu); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if lu.Timestamp != 1405942010 || lu.Values["watts"] != 75 {
		t.Errorf("lastupdate = %+v", lu)
	}
}

func TestDump(t *testing.T) {
	env := newTestEnv(t)
	env.touch(t, "power")

	out, err := env.execute(t, "", "dump", "power")
	if err != nil {
		t.Fatalf("dump error = %v", err)
	}
	if !strings.HasPrefix(out, "<rrd>") {
		t.Errorf("dump = %q", out)
	}
}

func TestUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.touch(t, "power")

	out, err := env.execute(t, "", "update", "power", "watts=1250", "--time", "1405942100")
	if err != nil {
		t.Fatalf("update error = %v", err)
	}
	if !strings.Contains(out, `"source": "cli"`) {
		t.Errorf("output = %q", out)
	}
	args := env.runner.last("update")
	if diff := cmp.Diff([]string{"update", filepath.Join(env.dataDir, "power.rrd"), "--template", "watts", "1405942100:1250"}, args); diff != "" {
		t.Errorf("update args mismatch (-want +got):\n%s", diff)
	}

	// The update is recorded in the catalog.
	db, err := sql.Open("sqlite3", env.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rrd_updates`).Scan(&count); err != nil {
		t.Fatalf("counting updates: %v", err)
	}
	if count != 1 {
		t.Errorf("recorded updates = %d, want 1", count)
	}
}

func TestUpdate_UnknownDataSource(t *testing.T) {
	env := newTestEnv(t)
	env.touch(t, "power")

	_, err := env.execute(t, "", "update", "power", "volts=230")
	if !errors.Is(err, rrdtool.ErrUnknownDataSource) {
		t.Errorf("update error = %v, want ErrUnknownDataSource", err)
	}
}

func TestParseValues(t *testing.T) {
	got, err := parseValues([]string{"watts=1.5", "volts=u"})
	if err != nil {
		t.Fatalf("parseValues() error = %v", err)
	}
	if got["watts"] != 1.5 || !got["volts"].IsNaN() {
		t.Errorf("parseValues() = %v", got)
	}

	for _, bad := range [][]string{{"watts"}, {"=1"}, {"watts="}, {"watts=abc"}, {"watts=1", "watts=2"}} {
		if _, err := parseValues(bad); err == nil {
			t.Errorf("parseValues(%q) error = nil", bad)
		}
	}
}
