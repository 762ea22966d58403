// Package mutation runs write operations and invalidates the queries they
// affect.
//
// An Executor runs a mutation to completion. When it succeeds, every
// declared key prefix is invalidated through the fetch coordinator, which
// refetches the observed keys under those prefixes. When it fails, the
// cache is left untouched and the error is returned wrapped with
// ErrMutationFailed.
package mutation
