package eventlog

import (
	"fmt"
	"time"

	"github.com/jonwraymond/querykit/visibility"
)

// Type classifies an event.
type Type string

const (
	TypeVisibilityVisible  Type = "document-visibility-visible"
	TypeVisibilityHidden   Type = "document-visibility-hidden"
	TypeManualInvalidation Type = "manual-invalidation"
	TypeDataWentStale      Type = "data-went-stale"
	TypeQueryFetching      Type = "query-fetching"
)

var allTypes = []Type{
	TypeVisibilityVisible,
	TypeVisibilityHidden,
	TypeManualInvalidation,
	TypeDataWentStale,
	TypeQueryFetching,
}

// Types returns every event type in display order.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// Valid reports whether t is one of Types().
func (t Type) Valid() bool {
	for _, known := range allTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseType returns the type named s.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// VisibilityType maps a visibility state to its event type.
func VisibilityType(s visibility.State) Type {
	if s == visibility.Hidden {
		return TypeVisibilityHidden
	}
	return TypeVisibilityVisible
}

// Event is one immutable log record. Type may be empty for untyped events.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"date"`
	Type      Type      `json:"type,omitempty"`
}
