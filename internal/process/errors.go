package process

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCommandFailed is matched by *ExitError.
	ErrCommandFailed = errors.New("process: command failed")

	// ErrTimeout indicates the command ran longer than Config.Timeout.
	ErrTimeout = errors.New("process: command timed out")

	// ErrNotFound indicates the binary could not be located.
	ErrNotFound = errors.New("process: binary not found")

	// ErrOutputTooLarge indicates stdout exceeded Config.MaxOutputSize.
	ErrOutputTooLarge = errors.New("process: output too large")
)

// diagnosticPrefix is stripped from the first stderr line of a failed run.
const diagnosticPrefix = "ERROR: "

// ExitError describes a command that exited with a non-zero status.
type ExitError struct {
	Name     string
	Args     []string
	ExitCode int
	// Message is the tool's diagnostic with any leading "ERROR: " removed.
	Message string
}

func (e *ExitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s exited with status %d", e.Name, e.ExitCode)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Is lets errors.Is match ExitError against ErrCommandFailed.
func (e *ExitError) Is(target error) bool {
	return target == ErrCommandFailed
}

// diagnostic turns raw stderr into a one-paragraph message.
func diagnostic(stderr string) string {
	msg := strings.TrimSpace(stderr)
	return strings.TrimPrefix(msg, diagnosticPrefix)
}
