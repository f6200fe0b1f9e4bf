package disclosure

import "errors"

// Error taxonomy. Callers wrap these with fmt.Errorf("...: %w") and classify
// with errors.Is.
var (
	// ErrFetch covers network, timeout and parse failures acquiring a batch.
	ErrFetch = errors.New("fetch failed")
	// ErrNormalize marks a single malformed record.
	ErrNormalize = errors.New("malformed record")
	// ErrDispatch covers notification delivery failures.
	ErrDispatch = errors.New("dispatch failed")
	// ErrFatalConfig is returned at startup for missing or invalid configuration.
	ErrFatalConfig = errors.New("invalid configuration")
)
