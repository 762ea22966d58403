// Package querykey provides hierarchical cache keys for query data.
//
// A Key is an ordered, immutable path of string segments from a root scope
// down to a specific resource. Keys relate by prefix: a key is a descendant
// of another when the other's segments are a prefix of its own. Factories
// build keys for a single scope so that every resource key strictly extends
// the key of its parent listing.
package querykey
