// Package resilience provides retry and timeout wrappers for query fetches.
//
// A fetch that fails is retried with backoff before its error is written to
// the cache, and each attempt can be bounded by a timeout. The two compose
// through an Executor:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithRetry(resilience.NewRetry(resilience.FetchRetryConfig())),
//	    resilience.WithTimeout(10*time.Second),
//	)
//
//	items, err := resilience.Run(ctx, exec, func(ctx context.Context) ([]Item, error) {
//	    return backend.ListItems(ctx)
//	})
//
// Cancellation of the caller's context is never retried.
package resilience
