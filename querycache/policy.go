package querycache

import (
	"fmt"
	"time"
)

// Policy configures staleness and reaping.
type Policy struct {
	// StaleDuration is how long data stays fresh after a successful fetch.
	// Zero means data is stale as soon as it arrives.
	StaleDuration time.Duration

	// GCTime is how long an entry with no subscribers is kept before GC
	// may remove it. Zero means it may be removed on the next pass.
	GCTime time.Duration
}

// DefaultPolicy returns the default policy.
// StaleDuration: 5 seconds, GCTime: 5 minutes
func DefaultPolicy() Policy {
	return Policy{
		StaleDuration: 5 * time.Second,
		GCTime:        5 * time.Minute,
	}
}

// Validate rejects negative durations.
func (p Policy) Validate() error {
	if p.StaleDuration < 0 {
		return fmt.Errorf("%w: negative stale duration %v", ErrInvalidPolicy, p.StaleDuration)
	}
	if p.GCTime < 0 {
		return fmt.Errorf("%w: negative gc time %v", ErrInvalidPolicy, p.GCTime)
	}
	return nil
}

// StaleAt returns the moment data fetched at fetchedAt becomes stale.
func (p Policy) StaleAt(fetchedAt time.Time) time.Time {
	return fetchedAt.Add(p.StaleDuration)
}
