package health

import "errors"

var (
	// ErrCheckFailed indicates a check of the cache or its storage failed,
	// for example a storage round trip returned a different blob.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout indicates a check ran past AggregatorConfig.Timeout.
	ErrCheckTimeout = errors.New("health: check timed out")

	// ErrCheckerNotFound indicates no checker is registered under a name.
	ErrCheckerNotFound = errors.New("health: no checker registered")
)
