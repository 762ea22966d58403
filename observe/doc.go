// Package observe provides observability primitives for query fetching.
//
// It is a pure instrumentation library: structured logging, OpenTelemetry
// metrics and tracing keyed by query key. The fetch coordinator and the
// mutation executor wire an Observer in; nothing here fetches or stores data.
package observe
