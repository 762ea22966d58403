package querykey

import "errors"

// Sentinel errors for key operations.
var (
	// ErrInvalidKey indicates a key has an empty or malformed segment.
	ErrInvalidKey = errors.New("querykey: key is invalid")

	// ErrKeyTooLong indicates a key exceeds MaxSegments or MaxKeyLength.
	ErrKeyTooLong = errors.New("querykey: key exceeds max length")

	// ErrInvalidScope indicates a factory was created with an unusable scope.
	ErrInvalidScope = errors.New("querykey: scope is invalid")
)
