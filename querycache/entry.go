package querycache

import (
	"time"

	"github.com/jonwraymond/querykit/querykey"
)

// Status is the fetch status of an entry.
type Status int

const (
	// StatusIdle means the entry exists but no fetch has started.
	StatusIdle Status = iota
	// StatusFetching means a fetch is in flight.
	StatusFetching
	// StatusSuccess means the last fetch succeeded.
	StatusSuccess
	// StatusError means the last fetch failed.
	StatusError
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RequestID identifies one fetch generation. Zero means none.
type RequestID uint64

// Outcome reports what a completion did to its entry.
type Outcome int

const (
	// OutcomeApplied means the completion was written to the entry.
	OutcomeApplied Outcome = iota
	// OutcomeSuperseded means a newer fetch owns the entry; nothing changed.
	OutcomeSuperseded
	// OutcomeUnknownKey means the entry no longer exists; nothing changed.
	OutcomeUnknownKey
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeUnknownKey:
		return "unknown-key"
	default:
		return "unknown"
	}
}

// Applied reports whether the completion changed the entry.
func (o Outcome) Applied() bool {
	return o == OutcomeApplied
}

// Entry is a point-in-time snapshot of one cached key.
type Entry struct {
	Key    querykey.Key
	Status Status

	// Data is the last successfully fetched value. It survives refetches,
	// invalidation and failed fetches. HasData distinguishes a nil value
	// from no value.
	Data    any
	HasData bool

	// Err is the error of the last failed fetch, cleared when a new one starts.
	Err error

	// FetchedAt is when the last successful fetch completed.
	FetchedAt time.Time

	// StaleAt is when the entry becomes stale. It is derived from FetchedAt
	// and pulled forward by invalidation.
	StaleAt time.Time

	Subscribers int
	InFlight    RequestID
}

// IsStale reports whether the entry is stale at now.
func (e Entry) IsStale(now time.Time) bool {
	if e.FetchedAt.IsZero() {
		return true
	}
	return !now.Before(e.StaleAt)
}

// StaleIn returns the time left until the entry becomes stale, or zero.
func (e Entry) StaleIn(now time.Time) time.Duration {
	if e.IsStale(now) {
		return 0
	}
	return e.StaleAt.Sub(now)
}

// IsFetching reports whether a fetch is in flight.
func (e Entry) IsFetching() bool {
	return e.InFlight != 0
}

// IsLoading reports a first fetch: in flight with no data to show yet.
func (e Entry) IsLoading() bool {
	return e.IsFetching() && !e.HasData
}

// IsRefetching reports a fetch in flight while older data is displayed.
func (e Entry) IsRefetching() bool {
	return e.IsFetching() && e.HasData
}

// record is the mutable state behind an Entry.
type record struct {
	key         querykey.Key
	status      Status
	data        any
	hasData     bool
	err         error
	fetchedAt   time.Time
	staleAt     time.Time
	subscribers int
	inFlight    RequestID

	// idleSince is when the record last became unobserved and settled.
	idleSince time.Time
}

func (r *record) snapshot() Entry {
	return Entry{
		Key:         r.key,
		Status:      r.status,
		Data:        r.data,
		HasData:     r.hasData,
		Err:         r.err,
		FetchedAt:   r.fetchedAt,
		StaleAt:     r.staleAt,
		Subscribers: r.subscribers,
		InFlight:    r.inFlight,
	}
}

func (r *record) idle() bool {
	return r.subscribers == 0 && r.inFlight == 0
}
