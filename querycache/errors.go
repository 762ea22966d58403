package querycache

import "errors"

// Sentinel errors for store configuration.
var (
	// ErrInvalidPolicy indicates a Policy with a negative duration.
	ErrInvalidPolicy = errors.New("querycache: policy is invalid")

	// ErrNilStore indicates a nil Store was provided.
	ErrNilStore = errors.New("querycache: store is nil")
)
