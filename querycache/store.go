package querycache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/querykit/querykey"
)

// ChangeKind names the transition that produced a Change.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeFetchStarted
	ChangeSucceeded
	ChangeFailed
	ChangeInvalidated
	ChangeSubscribed
	ChangeUnsubscribed
	ChangeRemoved
)

// String returns the string representation of the kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeFetchStarted:
		return "fetch-started"
	case ChangeSucceeded:
		return "succeeded"
	case ChangeFailed:
		return "failed"
	case ChangeInvalidated:
		return "invalidated"
	case ChangeSubscribed:
		return "subscribed"
	case ChangeUnsubscribed:
		return "unsubscribed"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change describes one entry transition.
type Change struct {
	Kind  ChangeKind
	Entry Entry
}

// Listener receives changes. Listeners run after the store's lock is
// released and may call back into the store.
type Listener func(Change)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used by operations that take no explicit time.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the shared, in-memory query cache.
//
// Contract:
// - Concurrency: safe for concurrent use; mutations are serialized.
// - Errors: operations on unknown keys are no-ops and never panic.
// - Ownership: Entry values are snapshots; Data is shared, not copied.
type Store struct {
	policy Policy
	now    func() time.Time
	nextID atomic.Uint64

	mu      sync.Mutex
	entries map[string]*record

	lmu        sync.RWMutex
	listeners  map[int]Listener
	listenerID int
}

// NewStore creates a store with the given policy.
func NewStore(policy Policy, opts ...Option) (*Store, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		policy:    policy,
		now:       time.Now,
		entries:   make(map[string]*record),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Now returns the time on the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Policy returns the store's policy.
func (s *Store) Policy() Policy {
	return s.policy
}

// NextRequestID returns a fresh, monotonically increasing request id.
func (s *Store) NextRequestID() RequestID {
	return RequestID(s.nextID.Add(1))
}

// Get returns the entry for key.
func (s *Store) Get(key querykey.Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.entries[key.String()]
	if !ok {
		return Entry{}, false
	}
	return r.snapshot(), true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// UpsertFetchStart records id as the in-flight fetch for key, creating the
// entry if needed. Any earlier in-flight id is superseded.
func (s *Store) UpsertFetchStart(key querykey.Key, id RequestID) Entry {
	s.mu.Lock()
	var changes []Change
	r, created := s.recordLocked(key, s.now())
	if created {
		changes = append(changes, Change{Kind: ChangeCreated, Entry: r.snapshot()})
	}
	r.status = StatusFetching
	r.err = nil
	r.inFlight = id
	entry := r.snapshot()
	changes = append(changes, Change{Kind: ChangeFetchStarted, Entry: entry})
	s.mu.Unlock()

	s.notify(changes...)
	return entry
}

// StartIfStale records id as the in-flight fetch for key only when no fetch
// is in flight and the entry is stale at now. It reports whether the fetch
// was started.
func (s *Store) StartIfStale(key querykey.Key, id RequestID, now time.Time) (Entry, bool) {
	s.mu.Lock()
	var changes []Change
	r, created := s.recordLocked(key, now)
	if created {
		changes = append(changes, Change{Kind: ChangeCreated, Entry: r.snapshot()})
	}
	if r.inFlight != 0 || !r.snapshot().IsStale(now) {
		entry := r.snapshot()
		s.mu.Unlock()
		s.notify(changes...)
		return entry, false
	}
	r.status = StatusFetching
	r.err = nil
	r.inFlight = id
	entry := r.snapshot()
	changes = append(changes, Change{Kind: ChangeFetchStarted, Entry: entry})
	s.mu.Unlock()

	s.notify(changes...)
	return entry, true
}

// CompleteSuccess applies the result of fetch id.
func (s *Store) CompleteSuccess(key querykey.Key, id RequestID, data any, now time.Time) (Entry, Outcome) {
	s.mu.Lock()
	r, outcome := s.ownerLocked(key, id)
	if outcome != OutcomeApplied {
		entry := Entry{}
		if r != nil {
			entry = r.snapshot()
		}
		s.mu.Unlock()
		return entry, outcome
	}

	r.status = StatusSuccess
	r.data = data
	r.hasData = true
	r.fetchedAt = now
	r.staleAt = s.policy.StaleAt(now)
	r.inFlight = 0
	if r.subscribers == 0 {
		r.idleSince = now
	}
	entry := r.snapshot()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeSucceeded, Entry: entry})
	return entry, OutcomeApplied
}

// CompleteError applies the failure of fetch id. Data from an earlier
// success is kept.
func (s *Store) CompleteError(key querykey.Key, id RequestID, err error, now time.Time) (Entry, Outcome) {
	s.mu.Lock()
	r, outcome := s.ownerLocked(key, id)
	if outcome != OutcomeApplied {
		entry := Entry{}
		if r != nil {
			entry = r.snapshot()
		}
		s.mu.Unlock()
		return entry, outcome
	}

	r.status = StatusError
	r.err = err
	r.inFlight = 0
	if r.subscribers == 0 {
		r.idleSince = now
	}
	entry := r.snapshot()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeFailed, Entry: entry})
	return entry, OutcomeApplied
}

// SetData writes data as if a fetch had just succeeded. An in-flight fetch
// is left in place and may overwrite the value when it completes.
func (s *Store) SetData(key querykey.Key, data any, now time.Time) Entry {
	s.mu.Lock()
	var changes []Change
	r, created := s.recordLocked(key, now)
	if created {
		changes = append(changes, Change{Kind: ChangeCreated, Entry: r.snapshot()})
	}
	if r.inFlight == 0 {
		r.status = StatusSuccess
		r.err = nil
	}
	r.data = data
	r.hasData = true
	r.fetchedAt = now
	r.staleAt = s.policy.StaleAt(now)
	entry := r.snapshot()
	changes = append(changes, Change{Kind: ChangeSucceeded, Entry: entry})
	s.mu.Unlock()

	s.notify(changes...)
	return entry
}

// Invalidate marks every entry at or below prefix stale as of now and
// returns their keys in canonical order. Data is kept. The root prefix
// matches every entry.
func (s *Store) Invalidate(prefix querykey.Key, now time.Time) []querykey.Key {
	s.mu.Lock()
	var (
		keys    []querykey.Key
		changes []Change
	)
	for _, id := range s.sortedIDsLocked() {
		r := s.entries[id]
		if !r.key.HasPrefix(prefix) {
			continue
		}
		if r.staleAt.IsZero() || r.staleAt.After(now) {
			r.staleAt = now
		}
		keys = append(keys, r.key)
		changes = append(changes, Change{Kind: ChangeInvalidated, Entry: r.snapshot()})
	}
	s.mu.Unlock()

	s.notify(changes...)
	return keys
}

// IsStale reports whether key has no fresh data at now.
func (s *Store) IsStale(key querykey.Key, now time.Time) bool {
	e, ok := s.Get(key)
	if !ok {
		return true
	}
	return e.IsStale(now)
}

// Subscribe adds a subscriber to key, creating an idle entry if needed.
func (s *Store) Subscribe(key querykey.Key) Entry {
	s.mu.Lock()
	var changes []Change
	r, created := s.recordLocked(key, s.now())
	if created {
		changes = append(changes, Change{Kind: ChangeCreated, Entry: r.snapshot()})
	}
	r.subscribers++
	r.idleSince = time.Time{}
	entry := r.snapshot()
	changes = append(changes, Change{Kind: ChangeSubscribed, Entry: entry})
	s.mu.Unlock()

	s.notify(changes...)
	return entry
}

// Unsubscribe removes a subscriber from key at now. The count never drops
// below zero. The entry stays until a GC at least GCTime after now removes
// it.
func (s *Store) Unsubscribe(key querykey.Key, now time.Time) (Entry, bool) {
	s.mu.Lock()
	r, ok := s.entries[key.String()]
	if !ok {
		s.mu.Unlock()
		return Entry{}, false
	}
	if r.subscribers > 0 {
		r.subscribers--
	}
	if r.idle() {
		r.idleSince = now
	}
	entry := r.snapshot()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUnsubscribed, Entry: entry})
	return entry, true
}

// Remove deletes the entry for key regardless of subscribers.
func (s *Store) Remove(key querykey.Key) bool {
	s.mu.Lock()
	id := key.String()
	r, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if ok {
		s.notify(Change{Kind: ChangeRemoved, Entry: r.snapshot()})
	}
	return ok
}

// GC removes entries that have had no subscribers and no in-flight fetch
// for at least the policy's GCTime. It returns the removed keys.
func (s *Store) GC(now time.Time) []querykey.Key {
	s.mu.Lock()
	var (
		keys    []querykey.Key
		changes []Change
	)
	for _, id := range s.sortedIDsLocked() {
		r := s.entries[id]
		if !r.idle() || now.Sub(r.idleSince) < s.policy.GCTime {
			continue
		}
		delete(s.entries, id)
		keys = append(keys, r.key)
		changes = append(changes, Change{Kind: ChangeRemoved, Entry: r.snapshot()})
	}
	s.mu.Unlock()

	s.notify(changes...)
	return keys
}

// Keys returns every key in canonical order.
func (s *Store) Keys() []querykey.Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.sortedIDsLocked()
	keys := make([]querykey.Key, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.entries[id].key)
	}
	return keys
}

// Subscribed returns the keys with at least one subscriber.
func (s *Store) Subscribed() []querykey.Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []querykey.Key
	for _, id := range s.sortedIDsLocked() {
		if r := s.entries[id]; r.subscribers > 0 {
			keys = append(keys, r.key)
		}
	}
	return keys
}

// Snapshot returns every entry in canonical key order.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.sortedIDsLocked()
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, s.entries[id].snapshot())
	}
	return entries
}

// Watch registers a listener and returns a func that removes it.
func (s *Store) Watch(fn Listener) (unwatch func()) {
	if fn == nil {
		return func() {}
	}
	s.lmu.Lock()
	id := s.listenerID
	s.listenerID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

func (s *Store) notify(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	s.lmu.RLock()
	if len(s.listeners) == 0 {
		s.lmu.RUnlock()
		return
	}
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.lmu.RUnlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// recordLocked returns the record for key, creating an idle one stamped
// with now if absent.
func (s *Store) recordLocked(key querykey.Key, now time.Time) (*record, bool) {
	id := key.String()
	if r, ok := s.entries[id]; ok {
		return r, false
	}
	r := &record{
		key:       key,
		status:    StatusIdle,
		idleSince: now,
	}
	s.entries[id] = r
	return r, true
}

// ownerLocked returns the record for key if id is its current in-flight id.
func (s *Store) ownerLocked(key querykey.Key, id RequestID) (*record, Outcome) {
	r, ok := s.entries[key.String()]
	if !ok {
		return nil, OutcomeUnknownKey
	}
	if id == 0 || r.inFlight != id {
		return r, OutcomeSuperseded
	}
	return r, OutcomeApplied
}

func (s *Store) sortedIDsLocked() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
