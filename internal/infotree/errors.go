package infotree

import (
	"errors"
	"fmt"
)

// Sentinel errors for tree parsing.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, infotree.ErrConflict) {
//	    // two lines disagreed on the shape of a path
//	}
var (
	// ErrConflict indicates two assignments disagree on the shape of a path.
	ErrConflict = errors.New("infotree: conflicting path shape")

	// ErrInvalidValue indicates an unquoted value that is not numeric (strict mode only).
	ErrInvalidValue = errors.New("infotree: invalid value")

	// ErrInvalidPath indicates a path string that cannot be tokenized.
	ErrInvalidPath = errors.New("infotree: invalid path")
)

// ConflictError reports where and how two assignments disagreed.
type ConflictError struct {
	Path     Path
	Existing Kind
	Incoming Kind
}

func (e *ConflictError) Error() string {
	path := e.Path.String()
	if path == "" {
		path = "<root>"
	}
	return fmt.Sprintf("infotree: conflicting path shape at %s: %s vs %s", path, e.Existing, e.Incoming)
}

// Is lets errors.Is match ConflictError against ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
