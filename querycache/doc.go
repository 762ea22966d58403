// Package querycache provides the key-addressed store behind query fetching.
//
// A Store holds one Entry per distinct key. Entries move through
// idle → fetching → success/error, keep their last good data across
// refetches and failures, and become stale either when their stale
// duration elapses or when a prefix covering them is invalidated.
//
// Every fetch is tagged with a RequestID. Only a completion carrying the
// entry's current in-flight id may write; completions of superseded fetches
// report OutcomeSuperseded and leave the entry untouched.
package querycache
