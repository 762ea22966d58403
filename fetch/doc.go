// Package fetch coordinates fetching for observed query keys.
//
// A Coordinator sits between observers and a querycache.Store. Observing a
// key subscribes to it and starts a fetch when the cached entry is missing
// or stale and no fetch is already running. Every fetch runs on its own
// goroutine under a fresh request id, so a result that arrives after a
// newer fetch started is discarded by the store instead of overwriting it.
//
// Invalidating a prefix marks the covered entries stale and immediately
// refetches those that are observed. A background loop started with Start
// reports entries that go stale while observed and reaps unobserved ones.
// Regaining visibility refetches stale observed keys when configured.
package fetch
