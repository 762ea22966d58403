package eventlog

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/querykit/observe"
	"github.com/jonwraymond/querykit/storage"
	"github.com/jonwraymond/querykit/visibility"
)

// Blob names under which a Log persists its state.
const (
	EventsBlob = "event-log-storage"
	FilterBlob = "event-log-filter-storage"
)

const (
	defaultSaveTimeout   = 5 * time.Second
	defaultFlushInterval = 100 * time.Millisecond
)

// Options configures a Log. Zero values select defaults.
type Options struct {
	// Now stamps events appended without a timestamp. Default: time.Now.
	Now func() time.Time

	// NewID assigns ids to events appended without one. Default: uuid.NewString.
	NewID func() string

	// Logger receives persistence failures. Default: observe.NopLogger().
	Logger observe.Logger

	// SaveTimeout bounds each background save. Default: 5s.
	SaveTimeout time.Duration

	// FlushInterval is how long the background writer waits after a change
	// before saving, so a burst of changes shares one save. Default: 100ms.
	FlushInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Logger == nil {
		o.Logger = observe.NopLogger()
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = defaultSaveTimeout
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = defaultFlushInterval
	}
	return o
}

// Log is the shared event log.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: background save failures are logged; Flush and Close return them.
// - Lifecycle: a Log from Open runs a writer goroutine until Close.
// - Ownership: returned slices are copies.
type Log struct {
	opts  Options
	store storage.Store

	mu       sync.RWMutex
	events   []Event
	included []Type

	// saveMu serializes snapshot+save so an older snapshot never lands last.
	saveMu sync.Mutex

	// dirty holds the blobs changed since their last save.
	dirty     atomic.Uint32
	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New returns an empty, unpersisted Log.
func New(opts Options) *Log {
	return &Log{opts: opts.withDefaults()}
}

// Open returns a Log restored from store. Changes are written back by a
// background writer; call Close to stop it and save what is pending. A nil
// store yields an unpersisted Log.
func Open(ctx context.Context, store storage.Store, opts Options) *Log {
	l := New(opts)
	l.store = store
	if store == nil {
		return l
	}

	if events, ok := l.loadEvents(ctx); ok {
		l.events = events
	}
	if included, ok := l.loadFilter(ctx); ok {
		l.included = included
	}

	l.wake = make(chan struct{}, 1)
	l.quit = make(chan struct{})
	l.done = make(chan struct{})
	go l.writeLoop()
	return l
}

// Append adds ev, assigning an id and timestamp if absent, and returns the
// stored event.
func (l *Log) Append(ev Event) Event {
	if ev.ID == "" {
		ev.ID = l.opts.NewID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.opts.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()

	l.persistEvents()
	return ev
}

// Record appends a new event of type t.
func (l *Log) Record(name string, t Type, content string) Event {
	return l.Append(Event{Name: name, Type: t, Content: content})
}

// RecordVisibility appends the event for a visibility transition.
func (l *Log) RecordVisibility(s visibility.State) Event {
	return l.Record("Document visibility changed", VisibilityType(s), "Document is now "+s.String())
}

// Remove deletes the event with id and reports whether it existed.
func (l *Log) Remove(id string) bool {
	l.mu.Lock()
	idx := slices.IndexFunc(l.events, func(ev Event) bool { return ev.ID == id })
	if idx < 0 {
		l.mu.Unlock()
		return false
	}
	l.events = slices.Delete(l.events, idx, idx+1)
	l.mu.Unlock()

	l.persistEvents()
	return true
}

// Clear removes every event. The filter is kept.
func (l *Log) Clear() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()

	l.persistEvents()
}

// Len returns the number of events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Events returns every event in insertion order.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.events)
}

// Sorted returns every event, newest first. Events with equal timestamps
// keep insertion order.
func (l *Log) Sorted() []Event {
	events := l.Events()
	sortNewestFirst(events)
	return events
}

// Filtered returns the events whose type is included, newest first. With
// an empty filter every event is returned.
func (l *Log) Filtered() []Event {
	l.mu.RLock()
	out := make([]Event, 0, len(l.events))
	for _, ev := range l.events {
		if len(l.included) == 0 || slices.Contains(l.included, ev.Type) {
			out = append(out, ev)
		}
	}
	l.mu.RUnlock()

	sortNewestFirst(out)
	return out
}

func sortNewestFirst(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}

// IncludedTypes returns the filter set.
func (l *Log) IncludedTypes() []Type {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.included)
}

// Includes reports whether the filtered view shows events of type t.
func (l *Log) Includes(t Type) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.included) == 0 || slices.Contains(l.included, t)
}

// SetIncludedTypes replaces the filter set. No types means include all.
func (l *Log) SetIncludedTypes(types ...Type) error {
	set := make([]Type, 0, len(types))
	for _, t := range types {
		if !t.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownType, t)
		}
		if !slices.Contains(set, t) {
			set = append(set, t)
		}
	}

	l.mu.Lock()
	l.included = set
	l.mu.Unlock()

	l.persistFilter()
	return nil
}

// ToggleType adds t to the filter set, or removes it if present.
func (l *Log) ToggleType(t Type) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	l.mu.Lock()
	if idx := slices.Index(l.included, t); idx >= 0 {
		l.included = slices.Delete(l.included, idx, idx+1)
	} else {
		l.included = append(l.included, t)
	}
	l.mu.Unlock()

	l.persistFilter()
	return nil
}

// ResetFilter includes every type explicitly.
func (l *Log) ResetFilter() {
	l.mu.Lock()
	l.included = Types()
	l.mu.Unlock()

	l.persistFilter()
}

// Flush saves both blobs now and returns the first failure.
func (l *Log) Flush(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	l.dirty.Store(0)

	if err := l.saveLocked(ctx, EventsBlob, l.encodeEvents); err != nil {
		return err
	}
	return l.saveLocked(ctx, FilterBlob, l.encodeFilter)
}

// Close stops the background writer and flushes. Changes made after Close
// are kept in memory and saved only by a later Flush.
func (l *Log) Close(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	l.closeOnce.Do(func() { close(l.quit) })
	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return l.Flush(ctx)
}
