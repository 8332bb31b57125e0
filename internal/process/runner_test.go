package process

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func shRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "sh"
	}
	cfg.Binary = "/bin/sh"
	return NewRunner(cfg)
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(Config{Binary: "/usr/bin/rrdtool"})

	if r.config.Name != "/usr/bin/rrdtool" {
		t.Errorf("Name = %q, want binary path", r.config.Name)
	}
	if r.config.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want %v", r.config.Timeout, defaultTimeout)
	}
	if r.config.MaxOutputSize != defaultMaxOutputSize {
		t.Errorf("MaxOutputSize = %d, want %d", r.config.MaxOutputSize, defaultMaxOutputSize)
	}
}

func TestDefaultConfig_Function(t *testing.T) {
	cfg := DefaultConfig("rrdtool", "/usr/bin/rrdtool")

	if cfg.Name != "rrdtool" {
		t.Errorf("Name = %q, want %q", cfg.Name, "rrdtool")
	}
	if cfg.Binary != "/usr/bin/rrdtool" {
		t.Errorf("Binary = %q, want %q", cfg.Binary, "/usr/bin/rrdtool")
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestRun_CapturesStdout(t *testing.T) {
	r := shRunner(t, Config{})

	res, err := r.Run(context.Background(), "-c", "printf 'hello\\nworld\\n'")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stdout != "hello\nworld\n" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestRun_UsesCLocale(t *testing.T) {
	r := shRunner(t, Config{Env: []string{"EXTRA=1"}})

	res, err := r.Run(context.Background(), "-c", "echo $LANG:$LC_ALL:$EXTRA")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := strings.TrimSpace(res.Stdout); got != "C:C:1" {
		t.Errorf("env = %q, want C:C:1", got)
	}
}

func TestRun_ExitError(t *testing.T) {
	r := shRunner(t, Config{Name: "rrdtool"})

	res, err := r.Run(context.Background(), "-c", "echo 'ERROR: opening x.rrd: No such file or directory' >&2; exit 1")
	if err == nil {
		t.Fatal("Run() error = nil, want ExitError")
	}
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("errors.Is(err, ErrCommandFailed) = false")
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error type = %T, want *ExitError", err)
	}
	if exitErr.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", exitErr.ExitCode)
	}
	if exitErr.Message != "opening x.rrd: No such file or directory" {
		t.Errorf("Message = %q", exitErr.Message)
	}
	if res.ExitCode != 1 {
		t.Errorf("Result.ExitCode = %d, want 1", res.ExitCode)
	}
	if exitErr.Error() != "rrdtool: opening x.rrd: No such file or directory" {
		t.Errorf("Error() = %q", exitErr.Error())
	}
}

func TestRun_NotFound(t *testing.T) {
	r := NewRunner(Config{Name: "missing", Binary: "/nonexistent/definitely-not-here"})

	_, err := r.Run(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Run() error = %v, want ErrNotFound", err)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := shRunner(t, Config{Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := r.Run(context.Background(), "-c", "sleep 5")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Run() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Run() took %v, process group was not killed promptly", elapsed)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	r := shRunner(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, "-c", "sleep 5")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_OutputLimit(t *testing.T) {
	r := shRunner(t, Config{MaxOutputSize: 4})

	res, err := r.Run(context.Background(), "-c", "printf 0123456789")
	if !errors.Is(err, ErrOutputTooLarge) {
		t.Errorf("Run() error = %v, want ErrOutputTooLarge", err)
	}
	if res.Stdout != "0123" {
		t.Errorf("Stdout = %q, want truncated 0123", res.Stdout)
	}
}

func TestRunner_Stats(t *testing.T) {
	r := shRunner(t, Config{Name: "stats"})
	ctx := context.Background()

	_, _ = r.Run(ctx, "-c", "true")
	_, _ = r.Run(ctx, "-c", "exit 3")

	stats := r.Stats()
	if stats.Name != "stats" {
		t.Errorf("Name = %q, want stats", stats.Name)
	}
	if stats.Runs != 2 {
		t.Errorf("Runs = %d, want 2", stats.Runs)
	}
	if stats.Failures != 1 {
		t.Errorf("Failures = %d, want 1", stats.Failures)
	}
	if stats.LastError == "" {
		t.Error("LastError is empty after a failed run")
	}
}

func TestDiagnostic(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "ERROR: bad\n", want: "bad"},
		{in: "  plain message  ", want: "plain message"},
		{in: "", want: ""},
		{in: "ERROR: ERROR: twice", want: "ERROR: twice"},
	}
	for _, tt := range tests {
		if got := diagnostic(tt.in); got != tt.want {
			t.Errorf("diagnostic(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
