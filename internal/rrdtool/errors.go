package rrdtool

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the rrdtool package.
var (
	// ErrNotFound indicates the database file does not exist.
	ErrNotFound = errors.New("rrdtool: database not found")

	// ErrExists indicates a create for a database that already exists or is
	// being created.
	ErrExists = errors.New("rrdtool: database already exists")

	// ErrUnknownDataSource is matched by *UnknownDataSourceError.
	ErrUnknownDataSource = errors.New("rrdtool: unknown data source")

	// ErrInvalidName indicates a managed name outside the allowed alphabet.
	ErrInvalidName = errors.New("rrdtool: invalid database name")

	// ErrInvalidDefinition indicates a create definition that is neither DS: nor RRA:.
	ErrInvalidDefinition = errors.New("rrdtool: invalid definition")

	// ErrInvalidConsolidation indicates an unsupported consolidation function.
	ErrInvalidConsolidation = errors.New("rrdtool: invalid consolidation function")

	// ErrNoValues indicates an update without any data source value.
	ErrNoValues = errors.New("rrdtool: update has no values")

	// ErrUnexpectedOutput indicates rrdtool printed something we cannot parse.
	ErrUnexpectedOutput = errors.New("rrdtool: unexpected output")

	// ErrClosed indicates the database or manager has been closed.
	ErrClosed = errors.New("rrdtool: closed")
)

// UnknownDataSourceError lists update keys the database does not define.
type UnknownDataSourceError struct {
	Filename string
	Names    []string
}

func (e *UnknownDataSourceError) Error() string {
	return fmt.Sprintf("unknown data source(s): %s", strings.Join(e.Names, ", "))
}

// Is lets errors.Is match UnknownDataSourceError against ErrUnknownDataSource.
func (e *UnknownDataSourceError) Is(target error) bool {
	return target == ErrUnknownDataSource
}
