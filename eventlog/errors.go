package eventlog

import "errors"

// ErrUnknownType is returned when a filter names a type that is not one of Types().
var ErrUnknownType = errors.New("eventlog: unknown event type")
