package catalog

import "errors"

// Domain errors for the catalog package.
var (
	// ErrNotFound is returned when no entry exists for a name.
	ErrNotFound = errors.New("catalog: not found")

	// ErrInvalidEntry is returned when an entry or update record fails validation.
	ErrInvalidEntry = errors.New("catalog: invalid entry")
)
