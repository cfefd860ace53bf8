package render

import "errors"

// Sentinel errors for engine and stream operations.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrInvalidArg indicates a nil, zero or out-of-range parameter.
	ErrInvalidArg = errors.New("invalid argument")

	// ErrInvalidState indicates the operation is illegal in the current
	// lifecycle state, e.g. write before open or reconfigure while
	// streams are running.
	ErrInvalidState = errors.New("invalid state")

	// ErrNoResource indicates a ring buffer or stage allocation failed.
	ErrNoResource = errors.New("resource allocation failed")

	// ErrNotFound indicates the requested processing kind is absent
	// from the catalog or the chain.
	ErrNotFound = errors.New("processor not found")

	// ErrNotSupported indicates a format combination or stage/stream
	// pairing was rejected, e.g. an encode stage on an input stream.
	ErrNotSupported = errors.New("not supported")

	// ErrTimeout indicates a bounded wait elapsed, e.g. a write into a
	// full ring buffer.
	ErrTimeout = errors.New("timed out")

	// ErrFail indicates a generic processing failure.
	ErrFail = errors.New("processing failed")
)
