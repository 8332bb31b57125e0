package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Default limits for a single invocation.
const (
	defaultTimeout       = 30 * time.Second
	defaultMaxOutputSize = 64 << 20
	defaultWaitDelay     = 2 * time.Second
)

// localeEnv pins number formatting so output parses identically on every host.
var localeEnv = []string{"LANG=C", "LC_ALL=C"}

// Config holds configuration for running a command-line tool.
type Config struct {
	// Name is a human-readable identifier for logging and errors.
	Name string

	// Binary is the path (or $PATH name) of the executable.
	Binary string

	// Env are additional environment variables (key=value format),
	// appended after the parent environment and the C locale.
	Env []string

	// WorkDir is the working directory for each run.
	// If empty, inherits from parent process.
	WorkDir string

	// Timeout bounds a single run. Zero means defaultTimeout.
	Timeout time.Duration

	// MaxOutputSize caps captured stdout in bytes. Zero means defaultMaxOutputSize.
	MaxOutputSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name, binary string) Config {
	return Config{
		Name:          name,
		Binary:        binary,
		Timeout:       defaultTimeout,
		MaxOutputSize: defaultMaxOutputSize,
	}
}

// Logger defines the logging interface for the runner.
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

// Result is the captured outcome of a finished run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes one tool, one invocation at a time per call. It is safe for
// concurrent use; serialization per resource is the caller's concern.
type Runner struct {
	config Config
	logger Logger

	mu           sync.RWMutex
	runs         uint64
	failures     uint64
	lastError    error
	lastDuration time.Duration
}

// NewRunner creates a runner with the given configuration.
func NewRunner(cfg Config) *Runner {
	// Apply defaults for zero values
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxOutputSize == 0 {
		cfg.MaxOutputSize = defaultMaxOutputSize
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}

	return &Runner{
		config: cfg,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Run executes the binary with args and waits for it to exit.
//
// Parameters:
//   - ctx: cancels the run; the whole process group is killed
//   - args: command-line arguments
//
// Returns:
//   - Result: captured output, also populated on a non-zero exit
//   - error: *ExitError on non-zero exit, ErrTimeout, ErrNotFound, or a start failure
func (r *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.config.Binary, args...) //nolint:gosec // Binary comes from validated config

	// Create a new process group so we can signal all children on cancel
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID signals the process group created via Setpgid
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	cmd.WaitDelay = defaultWaitDelay

	env := append(os.Environ(), localeEnv...)
	cmd.Env = append(env, r.config.Env...)

	if r.config.WorkDir != "" {
		cmd.Dir = r.config.WorkDir
	}

	stdout := &limitedBuffer{limit: r.config.MaxOutputSize}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running command",
		"name", r.config.Name,
		"args", args,
	)

	start := time.Now()
	runErr := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	err := r.classify(ctx, args, res, runErr, stdout.overflow)
	r.record(res.Duration, err)

	if err != nil {
		r.logger.Debug("command failed",
			"name", r.config.Name,
			"args", args,
			"duration", res.Duration,
			"error", err,
		)
		return res, err
	}
	return res, nil
}

// classify maps the raw exec outcome onto package errors.
func (r *Runner) classify(ctx context.Context, args []string, res Result, runErr error, overflow bool) error {
	if runErr == nil {
		if overflow {
			return fmt.Errorf("%w: %s exceeded %d bytes", ErrOutputTooLarge, r.config.Name, r.config.MaxOutputSize)
		}
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrTimeout, r.config.Name, r.config.Timeout)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("running %s: %w", r.config.Name, ctx.Err())
	}
	if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, r.config.Binary)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &ExitError{
			Name:     r.config.Name,
			Args:     append([]string(nil), args...),
			ExitCode: res.ExitCode,
			Message:  diagnostic(res.Stderr),
		}
	}
	return fmt.Errorf("starting %s: %w", r.config.Name, runErr)
}

func (r *Runner) record(d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	r.lastDuration = d
	if err != nil {
		r.failures++
		r.lastError = err
	}
}

// Stats returns statistics about the runner.
type Stats struct {
	Name         string        `json:"name"`
	Binary       string        `json:"binary"`
	Runs         uint64        `json:"runs"`
	Failures     uint64        `json:"failures"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the runner.
func (r *Runner) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Name:         r.config.Name,
		Binary:       r.config.Binary,
		Runs:         r.runs,
		Failures:     r.failures,
		LastDuration: r.lastDuration,
	}
	if r.lastError != nil {
		stats.LastError = r.lastError.Error()
	}
	return stats
}

// limitedBuffer keeps at most limit bytes and remembers whether more arrived.
type limitedBuffer struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.overflow = true
		return len(p), nil
	}
	if len(p) > room {
		b.overflow = true
		b.buf.Write(p[:room])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
