package items

import "errors"

var (
	// ErrNotFound indicates no item has the requested id.
	ErrNotFound = errors.New("items: item not found")

	// ErrInvalidName indicates an empty item or details name.
	ErrInvalidName = errors.New("items: name is empty")
)
