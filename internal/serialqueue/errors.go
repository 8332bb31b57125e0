package serialqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when submitting to a closed queue.
	ErrClosed = errors.New("serialqueue: queue closed")

	// ErrPanic is matched by a *PanicError.
	ErrPanic = errors.New("serialqueue: task panicked")
)

// PanicError carries a panic recovered from a task.
type PanicError struct {
	Queue string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("serialqueue: task on %s panicked: %v", e.Queue, e.Value)
}

// Is lets errors.Is match PanicError against ErrPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrPanic
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
