// Package eventlog keeps an ordered, filterable record of query lifecycle
// events: visibility changes, manual invalidations, data going stale and
// fetches starting.
//
// A Log is an in-memory list plus a set of included event types. When
// opened over a storage.Store it restores both from two named blobs, and a
// background writer saves changes, coalescing a burst into one save per
// blob. Flush and Close save synchronously. Persisted state that is missing
// or unreadable is replaced by an empty log; it is logged, never returned.
package eventlog
