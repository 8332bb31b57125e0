package ingest

import "errors"

var (
	// ErrInvalidTopic is returned for a message outside rrdcore/update/{name}.
	ErrInvalidTopic = errors.New("ingest: invalid topic")

	// ErrInvalidMessage is returned for a payload that does not decode or
	// carries no values.
	ErrInvalidMessage = errors.New("ingest: invalid message")

	// ErrMissingStore is returned by New without a Store.
	ErrMissingStore = errors.New("ingest: store is required")
)
