package resilience

import (
	"context"
	"sync"
	"time"
)

// Executor composes retry and timeout around an operation.
//
// Contract:
// - Concurrency: safe for concurrent use; holds no per-call state.
// - Context: cancellation stops retries and is returned as-is.
type Executor struct {
	retry   *Retry
	timeout *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor. With no options it runs
// the operation once, unchanged.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithTimeout bounds every attempt by timeout. Non-positive values disable it.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout <= 0 {
			e.timeout = nil
			return
		}
		e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// Execute runs op through the configured patterns. The timeout applies per
// attempt, inside the retry loop.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	execute := op

	if e.timeout != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.timeout.Execute(ctx, inner)
		}
	}

	if e.retry != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.retry.Execute(ctx, inner)
		}
	}

	return unwrapPermanent(execute(ctx))
}

// Run is Execute for operations that produce a value. Only the value of
// the attempt that succeeded is returned; an attempt abandoned by its
// timeout cannot overwrite it.
func Run[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	if e == nil {
		e = NewExecutor()
	}

	var (
		mu      sync.Mutex
		attempt int
		settled bool
		out     T
	)
	err := e.Execute(ctx, func(ctx context.Context) error {
		mu.Lock()
		attempt++
		mine := attempt
		mu.Unlock()

		v, err := op(ctx)
		if err != nil {
			return err
		}

		mu.Lock()
		if mine == attempt && !settled {
			out = v
		}
		mu.Unlock()
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	settled = true
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
