package graph

import "errors"

// Sentinel errors for graph construction and processing.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrNotFound indicates the catalog has no factory for the
	// requested stage kind.
	ErrNotFound = errors.New("stage kind not found")

	// ErrNoResource indicates a stage could not be instantiated.
	ErrNoResource = errors.New("stage allocation failed")

	// ErrNotSupported indicates a stage rejected the requested
	// input/output format combination.
	ErrNotSupported = errors.New("format combination not supported")

	// ErrNotOpen indicates the chain has not been opened yet.
	ErrNotOpen = errors.New("chain is not open")

	// ErrProcess indicates a stage failed while processing a block.
	ErrProcess = errors.New("stage processing failed")
)
