package fetch

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/querykit/eventlog"
	"github.com/jonwraymond/querykit/observe"
	"github.com/jonwraymond/querykit/querycache"
	"github.com/jonwraymond/querykit/querykey"
	"github.com/jonwraymond/querykit/resilience"
	"github.com/jonwraymond/querykit/visibility"
)

// Func fetches the data for one key.
type Func func(ctx context.Context) (any, error)

// Event names recorded by the coordinator.
const (
	DefaultFetchEventName = "Query fetching"
	StaleEventName        = "Data went stale"
	InvalidationEventName = "Manual invalidation"
)

// observed is the coordinator's view of one observed key.
type observed struct {
	fn    Func
	name  string
	count int

	// fresh is whether the entry was last seen holding fresh data.
	fresh bool
}

type flight struct {
	id   querycache.RequestID
	done chan struct{}
}

// Coordinator decides when observed keys are fetched.
//
// Contract:
//   - Concurrency: safe for concurrent use. Fetches run on their own goroutines.
//   - Context: a fetch keeps the values of the context that started it but is
//     canceled only by Stop, never by the caller.
//   - Errors: fetch failures are recorded on the cache entry and never returned.
type Coordinator struct {
	store *querycache.Store
	cfg   Config
	mw    *observe.Middleware
	exec  *resilience.Executor

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	observed   map[string]*observed
	flights    map[string]*flight
	visible    visibility.State
	stopped    bool
	loop       *errgroup.Group
	loopCancel context.CancelFunc
}

// New creates a Coordinator fetching into store.
func New(store *querycache.Store, cfg Config) (*Coordinator, error) {
	if store == nil {
		return nil, querycache.ErrNilStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = store.Now
	}
	cfg = cfg.withDefaults()

	mw, err := observe.MiddlewareFromObserver(cfg.Observer)
	if err != nil {
		return nil, err
	}

	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:    store,
		cfg:      cfg,
		mw:       mw,
		exec:     resilience.NewExecutor(resilience.WithRetry(cfg.Retry), resilience.WithTimeout(cfg.FetchTimeout)),
		base:     base,
		cancel:   cancel,
		observed: make(map[string]*observed),
		flights:  make(map[string]*flight),
		visible:  visibility.Visible,
	}, nil
}

// Store returns the cache the coordinator fetches into.
func (c *Coordinator) Store() *querycache.Store {
	return c.store
}

// ObserveOption configures one Observe call.
type ObserveOption func(*observeOptions)

type observeOptions struct {
	name string
}

// WithName sets the event name recorded when the key is fetched.
func WithName(name string) ObserveOption {
	return func(o *observeOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// Observe subscribes to key and fetches it with fn if its entry is missing
// or stale and no fetch is in flight. The latest fn registered for a key is
// used for every later fetch of it.
func (c *Coordinator) Observe(ctx context.Context, key querykey.Key, fn Func, opts ...ObserveOption) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilFetchFunc
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	o := observeOptions{name: DefaultFetchEventName}
	for _, opt := range opts {
		opt(&o)
	}

	id := key.String()
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	obs, ok := c.observed[id]
	if !ok {
		obs = &observed{}
		c.observed[id] = obs
	}
	obs.fn = fn
	obs.name = o.name
	obs.count++
	c.mu.Unlock()

	if entry := c.store.Subscribe(key); !entry.IsStale(c.cfg.Now()) {
		c.setFresh(key, true)
	}
	c.begin(ctx, key, false)

	return &Subscription{c: c, key: key}, nil
}

// Observed returns the keys with at least one open Subscription, in
// canonical order.
func (c *Coordinator) Observed() []querykey.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observedLocked()
}

func (c *Coordinator) observedLocked() []querykey.Key {
	ids := make([]string, 0, len(c.observed))
	for id := range c.observed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	keys := make([]querykey.Key, 0, len(ids))
	for _, id := range ids {
		// ids come from Key.String, so Parse cannot fail.
		k, _ := querykey.Parse(id)
		keys = append(keys, k)
	}
	return keys
}

func (c *Coordinator) release(key querykey.Key) {
	id := key.String()
	c.mu.Lock()
	if obs, ok := c.observed[id]; ok {
		obs.count--
		if obs.count <= 0 {
			delete(c.observed, id)
		}
	}
	c.mu.Unlock()

	c.store.Unsubscribe(key, c.cfg.Now())
}

// Invalidate marks every entry at or below prefix stale and refetches the
// observed ones, superseding any fetch already in flight for them. It
// returns the keys it refetched.
func (c *Coordinator) Invalidate(ctx context.Context, prefix querykey.Key) []querykey.Key {
	keys := c.store.Invalidate(prefix, c.cfg.Now())

	meta := observe.QueryMeta{Key: prefix, Operation: observe.OpInvalidate}
	c.mw.Metrics().RecordInvalidation(ctx, meta, len(keys))
	c.mw.Logger().WithQuery(meta).Debug(ctx, "queries invalidated",
		observe.Field{Key: "affected", Value: len(keys)},
	)

	var refetched []querykey.Key
	for _, k := range keys {
		if c.begin(ctx, k, true) {
			refetched = append(refetched, k)
		}
	}
	return refetched
}

// InvalidateManually is Invalidate for a user-requested invalidation. It
// also records a manual-invalidation event.
func (c *Coordinator) InvalidateManually(ctx context.Context, prefix querykey.Key) []querykey.Key {
	c.record(InvalidationEventName, eventlog.TypeManualInvalidation, prefix.String())
	return c.Invalidate(ctx, prefix)
}

// Refetch starts a fetch of an observed key, superseding one in flight. It
// reports false when the key is not observed.
func (c *Coordinator) Refetch(ctx context.Context, key querykey.Key) bool {
	return c.begin(ctx, key, true)
}

// CheckStale looks for observed entries that have gone from fresh to stale
// since the last check, records a data-went-stale event for each, and
// refetches them when RefetchOnStale is set. It returns those keys.
func (c *Coordinator) CheckStale(ctx context.Context) []querykey.Key {
	now := c.cfg.Now()

	var wentStale []querykey.Key
	for _, key := range c.Observed() {
		entry, ok := c.store.Get(key)
		if !ok {
			continue
		}
		stale := entry.IsStale(now)

		c.mu.Lock()
		obs, ok := c.observed[key.String()]
		crossed := ok && obs.fresh && stale && !entry.IsFetching()
		if ok {
			obs.fresh = !stale
		}
		c.mu.Unlock()

		if !crossed {
			continue
		}
		wentStale = append(wentStale, key)
		c.record(StaleEventName, eventlog.TypeDataWentStale, key.String())
		if c.cfg.RefetchOnStale {
			c.begin(ctx, key, false)
		}
	}
	return wentStale
}

// CollectGarbage removes unobserved entries idle for at least the store's
// GC time and returns their keys.
func (c *Coordinator) CollectGarbage(ctx context.Context) []querykey.Key {
	removed := c.store.GC(c.cfg.Now())
	if len(removed) > 0 {
		c.mw.Logger().Debug(ctx, "query entries reaped",
			observe.Field{Key: "removed", Value: len(removed)},
		)
	}
	return removed
}

// SetVisibility records the current visibility. Going from hidden to
// visible refetches stale observed keys when RefetchOnRegainFocus is set;
// the refetched keys are returned.
func (c *Coordinator) SetVisibility(ctx context.Context, state visibility.State) []querykey.Key {
	c.mu.Lock()
	prev := c.visible
	c.visible = state
	c.mu.Unlock()

	if prev == state || state != visibility.Visible || !c.cfg.RefetchOnRegainFocus {
		return nil
	}

	var refetched []querykey.Key
	for _, key := range c.Observed() {
		if c.begin(ctx, key, false) {
			refetched = append(refetched, key)
		}
	}
	return refetched
}

// Watch follows signal's visibility and returns a func that stops following.
func (c *Coordinator) Watch(ctx context.Context, signal *visibility.Signal) (unwatch func()) {
	c.mu.Lock()
	c.visible = signal.State()
	c.mu.Unlock()

	return signal.Subscribe(func(s visibility.State) {
		c.SetVisibility(ctx, s)
	})
}

// Start runs the stale check and GC loops until ctx is done or Stop is
// called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if c.loop != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.every(gctx, c.cfg.StaleCheckInterval, func(ctx context.Context) { c.CheckStale(ctx) })
		return nil
	})
	g.Go(func() error {
		c.every(gctx, c.cfg.GCInterval, func(ctx context.Context) { c.CollectGarbage(ctx) })
		return nil
	})
	c.loop = g
	c.loopCancel = cancel
	return nil
}

func (c *Coordinator) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.base.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Stop ends the background loops, cancels in-flight fetches and waits for
// them to settle. The coordinator cannot be used afterwards.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	loop, cancel := c.loop, c.loopCancel
	c.mu.Unlock()

	c.cancel()
	if loop != nil {
		cancel()
		_ = loop.Wait()
	}
	c.wg.Wait()
}

// Wait blocks until every fetch started so far has settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Settled blocks until key has no fetch in flight or ctx is done.
func (c *Coordinator) Settled(ctx context.Context, key querykey.Key) error {
	id := key.String()
	for {
		c.mu.Lock()
		f, ok := c.flights[id]
		c.mu.Unlock()
		if !ok {
			return nil
		}
		select {
		case <-f.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// begin starts a fetch of an observed key. With supersede set it replaces
// any fetch in flight; otherwise it starts only when the entry is stale and
// idle. It reports whether a fetch was started.
func (c *Coordinator) begin(ctx context.Context, key querykey.Key, supersede bool) bool {
	id := key.String()
	c.mu.Lock()
	obs, ok := c.observed[id]
	if !ok || c.stopped {
		c.mu.Unlock()
		return false
	}
	fn, name := obs.fn, obs.name
	c.mu.Unlock()

	reqID := c.store.NextRequestID()
	if supersede {
		c.store.UpsertFetchStart(key, reqID)
	} else if _, started := c.store.StartIfStale(key, reqID, c.cfg.Now()); !started {
		return false
	}

	f := &flight{id: reqID, done: make(chan struct{})}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.store.CompleteError(key, reqID, ErrStopped, c.cfg.Now())
		return false
	}
	if cur, ok := c.flights[id]; !ok || cur.id < reqID {
		c.flights[id] = f
	}
	if obs, ok := c.observed[id]; ok {
		obs.fresh = false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.mw.Logger().WithQuery(observe.MetaFor(observe.OpFetch, key)).Debug(ctx, "query fetch started",
		observe.Field{Key: "request_id", Value: uint64(reqID)},
	)
	c.record(name, eventlog.TypeQueryFetching, key.String())

	go c.run(ctx, key, f, fn)
	return true
}

func (c *Coordinator) run(ctx context.Context, key querykey.Key, f *flight, fn Func) {
	defer c.wg.Done()
	defer c.settle(key, f)

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(c.base, cancel)
	defer stop()

	meta := observe.MetaFor(observe.OpFetch, key)
	wrapped := c.mw.Wrap(meta, func(ctx context.Context) (any, error) {
		return resilience.Run[any](ctx, c.exec, fn)
	})
	data, err := wrapped(ctx)

	now := c.cfg.Now()
	var outcome querycache.Outcome
	if err != nil {
		_, outcome = c.store.CompleteError(key, f.id, err, now)
	} else {
		_, outcome = c.store.CompleteSuccess(key, f.id, data, now)
	}

	switch outcome {
	case querycache.OutcomeApplied:
		if err == nil {
			c.setFresh(key, true)
		}
	case querycache.OutcomeSuperseded:
		c.mw.Metrics().RecordDiscarded(ctx, meta)
		c.mw.Logger().WithQuery(meta).Debug(ctx, "superseded query result discarded",
			observe.Field{Key: "request_id", Value: uint64(f.id)},
		)
	case querycache.OutcomeUnknownKey:
		c.mw.Logger().WithQuery(meta).Debug(ctx, "query result dropped for removed entry",
			observe.Field{Key: "request_id", Value: uint64(f.id)},
		)
	}
}

func (c *Coordinator) settle(key querykey.Key, f *flight) {
	id := key.String()
	c.mu.Lock()
	if c.flights[id] == f {
		delete(c.flights, id)
	}
	c.mu.Unlock()
	close(f.done)
}

func (c *Coordinator) setFresh(key querykey.Key, fresh bool) {
	c.mu.Lock()
	if obs, ok := c.observed[key.String()]; ok {
		obs.fresh = fresh
	}
	c.mu.Unlock()
}

func (c *Coordinator) record(name string, t eventlog.Type, content string) {
	if c.cfg.Events != nil {
		c.cfg.Events.Record(name, t, content)
	}
}
