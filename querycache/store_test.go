package querycache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/querykit/querykey"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, policy Policy) *Store {
	t.Helper()
	s, err := NewStore(policy, WithClock(func() time.Time { return t0 }))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestNewStore_RejectsNegativeDurations(t *testing.T) {
	for _, p := range []Policy{
		{StaleDuration: -time.Second},
		{GCTime: -time.Second},
	} {
		if _, err := NewStore(p); !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("NewStore(%+v) error = %v, want ErrInvalidPolicy", p, err)
		}
	}
}

func TestStore_FetchLifecycle(t *testing.T) {
	s := newTestStore(t, Policy{StaleDuration: 5 * time.Second})
	key := querykey.New("all", "items")

	if _, ok := s.Get(key); ok {
		t.Fatal("Get on empty store should miss")
	}

	id := s.NextRequestID()
	e := s.UpsertFetchStart(key, id)
	if e.Status != StatusFetching {
		t.Errorf("status after fetch start = %v, want fetching", e.Status)
	}
	if e.InFlight != id {
		t.Errorf("InFlight = %d, want %d", e.InFlight, id)
	}
	if !e.IsLoading() {
		t.Error("first fetch should report loading")
	}

	data := []string{"1", "2"}
	e, outcome := s.CompleteSuccess(key, id, data, t0)
	if outcome != OutcomeApplied {
		t.Fatalf("CompleteSuccess outcome = %v, want applied", outcome)
	}
	if e.Status != StatusSuccess {
		t.Errorf("status = %v, want success", e.Status)
	}
	if got, ok := e.Data.([]string); !ok || len(got) != 2 {
		t.Errorf("Data = %v, want %v", e.Data, data)
	}
	if !e.FetchedAt.Equal(t0) {
		t.Errorf("FetchedAt = %v, want %v", e.FetchedAt, t0)
	}
	if !e.StaleAt.Equal(t0.Add(5 * time.Second)) {
		t.Errorf("StaleAt = %v, want fetchedAt+5s", e.StaleAt)
	}
	if e.InFlight != 0 {
		t.Errorf("InFlight = %d after completion, want 0", e.InFlight)
	}
}

func TestStore_IsStale(t *testing.T) {
	s := newTestStore(t, Policy{StaleDuration: 5 * time.Second})
	key := querykey.New("all", "items")

	if !s.IsStale(key, t0) {
		t.Error("absent key should be stale")
	}

	s.Subscribe(key)
	if !s.IsStale(key, t0) {
		t.Error("never-fetched entry should be stale")
	}

	id := s.NextRequestID()
	s.UpsertFetchStart(key, id)
	s.CompleteSuccess(key, id, "data", t0)

	if s.IsStale(key, t0) {
		t.Error("entry should be fresh right after success")
	}
	if s.IsStale(key, t0.Add(4999*time.Millisecond)) {
		t.Error("entry should be fresh before staleAt")
	}
	if !s.IsStale(key, t0.Add(5*time.Second)) {
		t.Error("entry should be stale at staleAt")
	}
}

func TestStore_StartIfStale(t *testing.T) {
	s := newTestStore(t, Policy{StaleDuration: 5 * time.Second})
	key := querykey.New("all", "items")

	first := s.NextRequestID()
	if e, ok := s.StartIfStale(key, first, t0); !ok || e.InFlight != first {
		t.Fatalf("StartIfStale on new key = %+v, %v; want started", e, ok)
	}
	if _, ok := s.StartIfStale(key, s.NextRequestID(), t0); ok {
		t.Error("StartIfStale must not start a second fetch while one is in flight")
	}

	s.CompleteSuccess(key, first, "v1", t0)
	if _, ok := s.StartIfStale(key, s.NextRequestID(), t0.Add(time.Second)); ok {
		t.Error("StartIfStale must not start a fetch for fresh data")
	}
	e, ok := s.StartIfStale(key, s.NextRequestID(), t0.Add(5*time.Second))
	if !ok || !e.IsRefetching() {
		t.Errorf("StartIfStale on stale data = %+v, %v; want refetching", e, ok)
	}
}

func TestStore_SupersededCompletionIsNoop(t *testing.T) {
	s := newTestStore(t, DefaultPolicy())
	key := querykey.New("all", "items")

	r1 := s.NextRequestID()
	s.UpsertFetchStart(key, r1)
	r2 := s.NextRequestID()
	s.UpsertFetchStart(key, r2)

	// r2 finishes first
	if _, outcome := s.CompleteSuccess(key, r2, "second", t0); outcome != OutcomeApplied {
		t.Fatalf("r2 outcome = %v, want applied", outcome)
	}

	// r1 arrives late and must not clobber r2
	e, outcome := s.CompleteSuccess(key, r1, "first", t0.Add(time.Second))
	if outcome != OutcomeSuperseded {
		t.Errorf("r1 outcome = %v, want superseded", outcome)
	}
	if e.Data != "second" {
		t.Errorf("Data = %v, want second", e.Data)
	}
	if !e.FetchedAt.Equal(t0) {
		t.Errorf("FetchedAt changed by superseded write: %v", e.FetchedAt)
	}

	// A superseded error is discarded as well
	if _, outcome := s.CompleteError(key, r1, errors.New("late"), t0); outcome != OutcomeSuperseded {
		t.Errorf("late error outcome = %v, want superseded", outcome)
	}
	if got, _ := s.Get(key); got.Status != StatusSuccess || got.Err != nil {
		t.Errorf("entry changed by superseded error: %+v", got)
	}
}

func TestStore_CompleteWithMismatchedID(t *testing.T) {
	s := newTestStore(t, DefaultPolicy())
	key := querykey.New("all", "items")

	s.UpsertFetchStart(key, 7)
	before, _ := s.Get(key)

	after, outcome := s.CompleteSuccess(key, 5, "data", t0)
	if outcome != OutcomeSuperseded {
		t.Fatalf("outcome = %v, want superseded", outcome)
	}
	if outcome.Applied() {
		t.Error("superseded outcome should not report applied")
	}
	if after.Status != before.Status || after.InFlight != 7 || after.HasData {
		t.Errorf("entry changed: before=%+v after=%+v", before, after)
	}
}

func TestStore_UnknownKeyCompletions(t *testing.T) {
	s := newTestStore(t, DefaultPolicy())
	key := querykey.New("evicted")

	if _, outcome := s.CompleteSuccess(key, 1, "x", t0); outcome != OutcomeUnknownKey {
		t.Errorf("CompleteSuccess outcome = %v, want unknown-key", outcome)
	}
	if _, outcome := s.CompleteError(key, 1, errors.New("x"), t0); outcome != OutcomeUnknownKey {
		t.Errorf("CompleteError outcome = %v, want unknown-key", outcome)
	}
	if keys := s.Invalidate(key, t0); len(keys) != 0 {
		t.Errorf("Invalidate on unknown key affected %v", keys)
	}
	if s.Len() != 0 {
		t.Errorf("completions on unknown keys created entries")
	}
}

func TestStore_ErrorKeepsData(t *testing.T) {
	s := newTestStore(t, DefaultPolicy())
	key := querykey.New("all", "items")

	id := s.NextRequestID()
	s.UpsertFetchStart(key, id)
	s.CompleteSuccess(key, id, "good", t0)

	id = s.NextRequestID()
	e := s.UpsertFetchStart(key, id)
	if !e.IsRefetching() {
		t.Error("refetch with data should report refetching")
	}

	fetchErr := errors.New("boom")
	e, outcome := s.CompleteError(key, id, fetchErr, t0)
	if outcome != OutcomeApplied {
		t.Fatalf("outcome = %v, want applied", outcome)
	}
	if e.Status != StatusError || !errors.Is(e.Err, fetchErr) {
		t.Errorf("entry = %+v, want error status with boom", e)
	}
	if e.Data != "good" || !e.HasData {
		t.Errorf("Data = %v, want last-known-good", e.Data)
	}

	// A new fetch clears the error
	e = s.UpsertFetchStart(key, s.NextRequestID())
	if e.Err != nil {
		t.Errorf("Err = %v after new fetch start, want nil", e.Err)
	}
}

func TestStore_InvalidatePrefix(t *testing.T) {
	s := newTestStore(t, Policy{StaleDuration: time.Minute})
	f := querykey.MustFactory("all")

	keys := []querykey.Key{
		f.Items(),
		f.Item("1"),
		f.ItemDetails("1"),
		f.Item("2"),
		querykey.New("other", "items"),
	}
	for _, k := range keys {
		id := s.NextRequestID()
		s.UpsertFetchStart(k, id)
		s.CompleteSuccess(k, id, k.String(), t0)
	}

	now := t0.Add(time.Second)
	affected := s.Invalidate(f.Item("1"), now)

	want := map[string]bool{f.Item("1").String(): true, f.ItemDetails("1").String(): true}
	if len(affected) != len(want) {
		t.Fatalf("affected = %v, want %d keys", affected, len(want))
	}
	for _, k := range affected {
		if !want[k.String()] {
			t.Errorf("unexpected affected key %v", k)
		}
	}

	for _, k := range keys {
		stale := s.IsStale(k, now)
		if stale != k.HasPrefix(f.Item("1")) {
			t.Errorf("IsStale(%v) = %v after invalidating %v", k, stale, f.Item("1"))
		}
		e, _ := s.Get(k)
		if e.Data != k.String() {
			t.Errorf("invalidation cleared data of %v", k)
		}
	}
}

func TestStore_InvalidateRootAffectsAll(t *testing.T) {
	s := newTestStore(t, DefaultPolicy())
	s.Subscribe(querykey.New("a"))
	s.Subscribe(querykey.New("b", "c"))

	if got := s.Invalidate(querykey.Root(), t0); len(got) != 2 {
		t.Errorf("Invalidate(root) affected %v, want 2 keys", got)
	}
}

func TestStore_InvalidateIdempotent(t *testing.T) {
	s := newTestStore(t, Policy{StaleDuration: time.Minute})
	key := querykey.New("all", "items")

	id := s.NextRequestID()
	s.UpsertFetchStart(key, id)
	s.CompleteSuccess(key, id, "data", t0)

	first := t0.Add(time.Second)
	s.Invalidate(key, first)
	a, _ := s.Get(key)

	s.Invalidate(key, first.Add(time.Second))
	b, _ := s.Get(key)

	if a.Data != b.Data || a.Status != b.Status || !a.FetchedAt.Equal(b.FetchedAt) {
		t.Errorf("second invalidation changed entry: %+v -> %+v", a, b)
	}
	if !b.StaleAt.Equal(first) {
		t.Errorf("StaleAt = %v, want it kept at first invalidation %v", b.StaleAt, first)
	}
}

func TestStore_SubscribeUnsubscribe(t *testing.T) {
	s := newTestStore(t, DefaultPolicy())
	key := querykey.New("all", "items")

	e := s.Subscribe(key)
	if e.Subscribers != 1 || e.Status != StatusIdle {
		t.Errorf("after Subscribe = %+v", e)
	}
	s.Subscribe(key)

	e, ok := s.Unsubscribe(key, t0)
	if !ok || e.Subscribers != 1 {
		t.Errorf("after Unsubscribe = %+v, %v", e, ok)
	}
	s.Unsubscribe(key, t0)
	e, _ = s.Unsubscribe(key, t0)
	if e.Subscribers != 0 {
		t.Errorf("Subscribers = %d, want it clamped at 0", e.Subscribers)
	}

	if _, ok := s.Get(key); !ok {
		t.Error("entry should remain until GC")
	}
	if _, ok := s.Unsubscribe(querykey.New("missing"), t0); ok {
		t.Error("Unsubscribe on unknown key should report false")
	}
}

func TestStore_GC(t *testing.T) {
	now := t0
	s, err := NewStore(Policy{GCTime: time.Minute}, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}

	watched := querykey.New("watched")
	released := querykey.New("released")
	fetching := querykey.New("fetching")

	s.Subscribe(watched)
	s.Subscribe(released)
	s.Unsubscribe(released, now)
	s.UpsertFetchStart(fetching, s.NextRequestID())

	if got := s.GC(now.Add(30 * time.Second)); len(got) != 0 {
		t.Errorf("GC before GCTime removed %v", got)
	}

	removed := s.GC(now.Add(time.Minute))
	if len(removed) != 1 || !removed[0].Equal(released) {
		t.Errorf("GC removed %v, want [%v]", removed, released)
	}
	if _, ok := s.Get(watched); !ok {
		t.Error("subscribed entry was reaped")
	}
	if _, ok := s.Get(fetching); !ok {
		t.Error("in-flight entry was reaped")
	}
}

func TestStore_UnsubscribeUsesGivenTime(t *testing.T) {
	s := newTestStore(t, Policy{GCTime: time.Minute})
	key := querykey.New("all", "items")

	s.Subscribe(key)
	released := t0.Add(time.Hour)
	s.Unsubscribe(key, released)

	if got := s.GC(released.Add(30 * time.Second)); len(got) != 0 {
		t.Errorf("GC removed %v before GCTime after release", got)
	}
	if got := s.GC(released.Add(time.Minute)); len(got) != 1 || !got[0].Equal(key) {
		t.Errorf("GC removed %v, want [%v]", got, key)
	}
}

func TestStore_GCAfterFetchSettles(t *testing.T) {
	s := newTestStore(t, Policy{GCTime: time.Minute})
	key := querykey.New("all", "items")

	s.Subscribe(key)
	id := s.NextRequestID()
	s.UpsertFetchStart(key, id)
	s.Unsubscribe(key, t0)

	if got := s.GC(t0.Add(time.Hour)); len(got) != 0 {
		t.Fatalf("GC removed entry with fetch in flight: %v", got)
	}

	settled := t0.Add(2 * time.Hour)
	s.CompleteSuccess(key, id, "data", settled)

	if got := s.GC(settled.Add(59 * time.Second)); len(got) != 0 {
		t.Errorf("GC removed entry before GCTime after settling: %v", got)
	}
	if got := s.GC(settled.Add(time.Minute)); len(got) != 1 {
		t.Errorf("GC did not remove settled idle entry")
	}
}

func TestStore_SetData(t *testing.T) {
	s := newTestStore(t, Policy{StaleDuration: time.Second})
	key := querykey.New("all", "items")

	e := s.SetData(key, "manual", t0)
	if e.Status != StatusSuccess || e.Data != "manual" || e.IsStale(t0) {
		t.Errorf("SetData entry = %+v", e)
	}

	id := s.NextRequestID()
	s.UpsertFetchStart(key, id)
	e = s.SetData(key, "optimistic", t0)
	if e.Status != StatusFetching || e.InFlight != id {
		t.Errorf("SetData disturbed in-flight fetch: %+v", e)
	}
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t, DefaultPolicy())
	key := querykey.New("all", "items")
	s.Subscribe(key)

	if !s.Remove(key) {
		t.Error("Remove of existing key should report true")
	}
	if s.Remove(key) {
		t.Error("Remove of missing key should report false")
	}
}

func TestStore_Listing(t *testing.T) {
	s := newTestStore(t, DefaultPolicy())
	s.Subscribe(querykey.New("b"))
	s.UpsertFetchStart(querykey.New("a"), s.NextRequestID())

	keys := s.Keys()
	if len(keys) != 2 || keys[0].String() != `["a"]` || keys[1].String() != `["b"]` {
		t.Errorf("Keys() = %v, want canonical order", keys)
	}
	sub := s.Subscribed()
	if len(sub) != 1 || sub[0].String() != `["b"]` {
		t.Errorf("Subscribed() = %v", sub)
	}
	if snap := s.Snapshot(); len(snap) != 2 {
		t.Errorf("Snapshot() len = %d", len(snap))
	}
}

func TestStore_Watch(t *testing.T) {
	s := newTestStore(t, DefaultPolicy())
	key := querykey.New("all", "items")

	var kinds []ChangeKind
	unwatch := s.Watch(func(c Change) {
		kinds = append(kinds, c.Kind)
	})

	id := s.NextRequestID()
	s.UpsertFetchStart(key, id)
	s.CompleteSuccess(key, id, "x", t0)
	s.CompleteSuccess(key, id, "y", t0) // superseded, no change
	s.Invalidate(key, t0)

	want := []ChangeKind{ChangeCreated, ChangeFetchStarted, ChangeSucceeded, ChangeInvalidated}
	if len(kinds) != len(want) {
		t.Fatalf("changes = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("change[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}

	unwatch()
	unwatch()
	s.Invalidate(key, t0)
	if len(kinds) != len(want) {
		t.Error("listener called after unwatch")
	}
}

func TestStore_WatchReentrant(t *testing.T) {
	s := newTestStore(t, DefaultPolicy())
	key := querykey.New("all", "items")

	// Invalidate from inside a listener must not deadlock
	s.Watch(func(c Change) {
		if c.Kind == ChangeSucceeded {
			s.Invalidate(querykey.Root(), t0)
		}
	})

	id := s.NextRequestID()
	s.UpsertFetchStart(key, id)
	s.CompleteSuccess(key, id, "x", t0)

	if !s.IsStale(key, t0) {
		t.Error("reentrant invalidation was not applied")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := newTestStore(t, DefaultPolicy())
	key := querykey.New("all", "items")

	const numGoroutines = 50
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				switch j % 4 {
				case 0:
					id := s.NextRequestID()
					s.UpsertFetchStart(key, id)
					s.CompleteSuccess(key, id, j, t0)
				case 1:
					s.Invalidate(querykey.Root(), t0)
				case 2:
					s.Subscribe(key)
				case 3:
					s.Unsubscribe(key, t0)
				}
			}
		}()
	}
	wg.Wait()

	if _, ok := s.Get(key); !ok {
		t.Error("entry missing after concurrent access")
	}
}

func TestStatus_String(t *testing.T) {
	tests := map[Status]string{
		StatusIdle:     "idle",
		StatusFetching: "fetching",
		StatusSuccess:  "success",
		StatusError:    "error",
		Status(99):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}
