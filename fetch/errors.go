package fetch

import "errors"

var (
	// ErrNilFetchFunc indicates Observe was called without a fetch function.
	ErrNilFetchFunc = errors.New("fetch: fetch func is nil")

	// ErrStopped indicates the coordinator has been stopped.
	ErrStopped = errors.New("fetch: coordinator stopped")

	// ErrAlreadyStarted indicates Start was called on a running coordinator.
	ErrAlreadyStarted = errors.New("fetch: coordinator already started")

	// ErrInvalidConfig indicates a Config with unusable values.
	ErrInvalidConfig = errors.New("fetch: config is invalid")
)
