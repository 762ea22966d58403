package storage

import "errors"

var (
	// ErrNotConfigured is returned when a driver is missing a required setting.
	ErrNotConfigured = errors.New("storage: driver not configured")

	// ErrUnknownDriver is returned for a driver name New does not handle.
	ErrUnknownDriver = errors.New("storage: unknown driver")

	// ErrInvalidName is returned for blob names that are empty or unsafe.
	ErrInvalidName = errors.New("storage: invalid blob name")
)
