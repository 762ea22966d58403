package querykey

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// MaxSegments is the maximum number of segments in a key.
	MaxSegments = 32

	// MaxKeyLength is the maximum length of a key's canonical form.
	MaxKeyLength = 512
)

// Key is an ordered, immutable sequence of segments.
//
// The zero value is the root key, which is a prefix of every key.
type Key struct {
	segments []string
}

// New creates a key from the given segments. The segments are copied.
func New(segments ...string) Key {
	if len(segments) == 0 {
		return Key{}
	}
	s := make([]string, len(segments))
	copy(s, segments)
	return Key{segments: s}
}

// Root returns the empty key.
func Root() Key {
	return Key{}
}

// Segments returns a copy of the key's segments.
func (k Key) Segments() []string {
	s := make([]string, len(k.segments))
	copy(s, k.segments)
	return s
}

// Len returns the number of segments.
func (k Key) Len() int {
	return len(k.segments)
}

// IsRoot reports whether k is the empty key.
func (k Key) IsRoot() bool {
	return len(k.segments) == 0
}

// Scope returns the first segment, or "" for the root key.
func (k Key) Scope() string {
	if len(k.segments) == 0 {
		return ""
	}
	return k.segments[0]
}

// Append returns a new key extending k with the given segments.
func (k Key) Append(segments ...string) Key {
	s := make([]string, 0, len(k.segments)+len(segments))
	s = append(s, k.segments...)
	s = append(s, segments...)
	return Key{segments: s}
}

// Parent returns k without its last segment. The parent of root is root.
func (k Key) Parent() Key {
	if len(k.segments) <= 1 {
		return Key{}
	}
	return New(k.segments[:len(k.segments)-1]...)
}

// Equal reports whether both keys have the same segments in the same order.
func (k Key) Equal(other Key) bool {
	if len(k.segments) != len(other.segments) {
		return false
	}
	for i := range k.segments {
		if k.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix's segments are a prefix of k's segments.
// Every key has itself and the root key as a prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix.segments) > len(k.segments) {
		return false
	}
	for i := range prefix.segments {
		if k.segments[i] != prefix.segments[i] {
			return false
		}
	}
	return true
}

// IsDescendantOf reports whether k strictly extends ancestor.
func (k Key) IsDescendantOf(ancestor Key) bool {
	return len(k.segments) > len(ancestor.segments) && k.HasPrefix(ancestor)
}

// String returns the canonical form of the key: a JSON array of segments.
// Equal keys always produce equal strings.
func (k Key) String() string {
	if len(k.segments) == 0 {
		return "[]"
	}
	data, err := json.Marshal(k.segments)
	if err != nil {
		// []string always marshals
		return "[]"
	}
	return string(data)
}

// MarshalJSON encodes the key as a JSON array of segments.
func (k Key) MarshalJSON() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalJSON decodes a JSON array of segments.
func (k *Key) UnmarshalJSON(data []byte) error {
	var segments []string
	if err := json.Unmarshal(data, &segments); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	*k = New(segments...)
	return nil
}

// Parse decodes the canonical form produced by String and validates it.
func Parse(s string) (Key, error) {
	var k Key
	if err := k.UnmarshalJSON([]byte(s)); err != nil {
		return Key{}, err
	}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Validate checks that every segment is usable in a key.
func (k Key) Validate() error {
	if len(k.segments) > MaxSegments {
		return ErrKeyTooLong
	}
	for i, seg := range k.segments {
		if err := validateSegment(seg); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
	}
	if len(k.String()) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

func validateSegment(seg string) error {
	if strings.TrimSpace(seg) == "" {
		return ErrInvalidKey
	}
	// Reject control characters, they make keys unprintable in logs
	for _, r := range seg {
		if r < 0x20 || r == 0x7f {
			return ErrInvalidKey
		}
	}
	return nil
}
