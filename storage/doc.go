// Package storage persists named blobs for the event log.
//
// A Store saves and loads opaque byte slices by name. It owns no format:
// callers decide what a blob contains. Four drivers are provided:
//
//   - memory: in-process, lost on exit
//   - file: one file per name, written atomically
//   - sqlite: one row per name in a local database
//   - redis: one key per name under a shared prefix
//
// Use New to pick a driver from Config, or the driver constructors directly.
package storage
