// Package visibility broadcasts whether the presentation layer is visible.
//
// A Signal holds the current state and notifies subscribers on every
// transition. The fetch coordinator refetches stale keys when it sees
// Visible, and the event log records both transitions.
package visibility
