package mutation

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/querykit/fetch"
	"github.com/jonwraymond/querykit/observe"
	"github.com/jonwraymond/querykit/querykey"
)

// Func performs one write.
type Func func(ctx context.Context) error

// Options configures one mutation.
type Options struct {
	// Name labels the mutation in logs, spans and metrics.
	Name string

	// Invalidates lists the key prefixes to invalidate on success.
	Invalidates []querykey.Key

	// AwaitRefetch makes Run wait until the refetches started by the
	// invalidation have settled.
	AwaitRefetch bool

	// OnSuccess runs after the invalidation, before Run returns.
	OnSuccess func(ctx context.Context)
}

// Executor runs mutations against one coordinator.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: a failed mutation invalidates nothing and returns an error
//     wrapping ErrMutationFailed and the mutation's own error.
type Executor struct {
	coord   *fetch.Coordinator
	tracer  observe.Tracer
	metrics observe.Metrics
	logger  observe.Logger
	pending atomic.Int64
}

// New creates an Executor. A nil obs selects observe.Nop.
func New(coord *fetch.Coordinator, obs observe.Observer) (*Executor, error) {
	if coord == nil {
		return nil, ErrNilCoordinator
	}
	if obs == nil {
		obs = observe.Nop()
	}
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, err
	}
	return &Executor{
		coord:   coord,
		tracer:  mw.Tracer(),
		metrics: mw.Metrics(),
		logger:  mw.Logger(),
	}, nil
}

// Pending returns the number of mutations currently running.
func (e *Executor) Pending() int {
	return int(e.pending.Load())
}

// Run executes fn and, if it succeeds, invalidates opts.Invalidates.
func (e *Executor) Run(ctx context.Context, fn Func, opts Options) error {
	if fn == nil {
		return ErrNilMutationFunc
	}
	e.pending.Add(1)
	defer e.pending.Add(-1)

	meta := observe.QueryMeta{Key: scopeKey(opts.Invalidates), Operation: observe.OpMutate, Name: opts.Name}
	ctx, span := e.tracer.StartSpan(ctx, meta)
	err := fn(ctx)
	e.tracer.EndSpan(span, err)
	e.metrics.RecordMutation(ctx, meta, err)

	logger := e.logger.WithQuery(meta)
	if err != nil {
		logger.Warn(ctx, "mutation failed", observe.Field{Key: "error", Value: err})
		return fmt.Errorf("%w: %w", ErrMutationFailed, err)
	}

	var refetched []querykey.Key
	for _, prefix := range opts.Invalidates {
		refetched = append(refetched, e.coord.Invalidate(ctx, prefix)...)
	}
	logger.Debug(ctx, "mutation completed",
		observe.Field{Key: "invalidated", Value: len(opts.Invalidates)},
		observe.Field{Key: "refetched", Value: len(refetched)},
	)

	if opts.AwaitRefetch && len(refetched) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, key := range refetched {
			g.Go(func() error { return e.coord.Settled(gctx, key) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	if opts.OnSuccess != nil {
		opts.OnSuccess(ctx)
	}
	return nil
}

// RunWith runs a mutation that takes an argument and produces a result,
// returning the result only when the mutation succeeded.
func RunWith[A, R any](ctx context.Context, e *Executor, fn func(context.Context, A) (R, error), arg A, opts Options) (R, error) {
	var out R
	if fn == nil {
		return out, ErrNilMutationFunc
	}
	err := e.Run(ctx, func(ctx context.Context) error {
		r, err := fn(ctx, arg)
		if err != nil {
			return err
		}
		out = r
		return nil
	}, opts)
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

// scopeKey returns the first invalidated prefix, used to label the
// mutation's span and metrics.
func scopeKey(prefixes []querykey.Key) querykey.Key {
	if len(prefixes) == 0 {
		return querykey.Root()
	}
	return prefixes[0]
}
