package fetch

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/querykit/eventlog"
	"github.com/jonwraymond/querykit/observe"
	"github.com/jonwraymond/querykit/querycache"
	"github.com/jonwraymond/querykit/querykey"
	"github.com/jonwraymond/querykit/resilience"
)

var (
	t0      = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	factory = querykey.MustFactory("all")
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testObserver struct {
	tracer trace.Tracer
	meter  metric.Meter
}

func (o *testObserver) Tracer() trace.Tracer           { return o.tracer }
func (o *testObserver) Meter() metric.Meter            { return o.meter }
func (o *testObserver) Logger() observe.Logger         { return observe.NopLogger() }
func (o *testObserver) Shutdown(context.Context) error { return nil }

type harness struct {
	c      *Coordinator
	store  *querycache.Store
	clock  *clock
	events *eventlog.Log
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// newHarness builds a coordinator on a fake clock with no retries. mutate
// may adjust the config before construction.
func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	clk := &clock{now: t0}
	store, err := querycache.NewStore(querycache.Policy{
		StaleDuration: 5 * time.Second,
		GCTime:        time.Minute,
	}, querycache.WithClock(clk.Now))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	events := eventlog.New(eventlog.Options{Now: clk.Now})

	cfg := DefaultConfig()
	cfg.Retry = resilience.NoRetry()
	cfg.Now = clk.Now
	cfg.Events = events
	cfg.Observer = &testObserver{tracer: tp.Tracer("test"), meter: mp.Meter("test")}
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(store, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Stop)
	return &harness{c: c, store: store, clock: clk, events: events, spans: spans, reader: reader}
}

func (h *harness) countEvents(typ eventlog.Type) int {
	n := 0
	for _, ev := range h.events.Events() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (h *harness) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: got %T, want Sum[int64]", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func (h *harness) entry(t *testing.T, key querykey.Key) querycache.Entry {
	t.Helper()
	e, ok := h.store.Get(key)
	if !ok {
		t.Fatalf("no entry for %s", key)
	}
	return e
}

type reply struct {
	data any
	err  error
}

// gatedFetch is a fetch func whose calls block until replied to.
type gatedFetch struct {
	mu      sync.Mutex
	calls   int
	gates   []chan reply
	started chan int
}

func newGatedFetch() *gatedFetch {
	return &gatedFetch{started: make(chan int, 16)}
}

func (g *gatedFetch) gateLocked(n int) chan reply {
	for len(g.gates) <= n {
		g.gates = append(g.gates, make(chan reply, 1))
	}
	return g.gates[n]
}

func (g *gatedFetch) Fetch(ctx context.Context) (any, error) {
	g.mu.Lock()
	n := g.calls
	g.calls++
	gate := g.gateLocked(n)
	g.mu.Unlock()

	g.started <- n
	select {
	case r := <-gate:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedFetch) Reply(n int, data any, err error) {
	g.mu.Lock()
	gate := g.gateLocked(n)
	g.mu.Unlock()
	gate <- reply{data: data, err: err}
}

func (g *gatedFetch) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *gatedFetch) WaitStarted(t *testing.T, n int) {
	t.Helper()
	select {
	case got := <-g.started:
		if got != n {
			t.Fatalf("call %d started, want %d", got, n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("call %d never started", n)
	}
}

// countingFetch returns a fetch func that succeeds with its call number.
func countingFetch() (Func, func() int) {
	var (
		mu    sync.Mutex
		calls int
	)
	fn := func(context.Context) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return calls, nil
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return calls
	}
	return fn, count
}
