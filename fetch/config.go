package fetch

import (
	"fmt"
	"time"

	"github.com/jonwraymond/querykit/eventlog"
	"github.com/jonwraymond/querykit/observe"
	"github.com/jonwraymond/querykit/resilience"
)

// Default intervals.
const (
	DefaultStaleCheckInterval = time.Second
	DefaultGCInterval         = time.Minute
)

// EventRecorder receives lifecycle events. *eventlog.Log implements it.
type EventRecorder interface {
	Record(name string, t eventlog.Type, content string) eventlog.Event
}

// Config configures a Coordinator.
type Config struct {
	// RefetchOnRegainFocus refetches stale observed keys when visibility
	// changes from hidden to visible.
	RefetchOnRegainFocus bool

	// RefetchOnStale refetches observed keys the background loop finds stale.
	RefetchOnStale bool

	// StaleCheckInterval is how often the background loop looks for entries
	// that went stale. Default: 1s.
	StaleCheckInterval time.Duration

	// GCInterval is how often the background loop reaps unobserved entries.
	// Default: 1m.
	GCInterval time.Duration

	// Retry re-runs failed fetches. Nil selects resilience.FetchRetryConfig.
	Retry *resilience.Retry

	// FetchTimeout bounds each fetch attempt. Zero means no timeout.
	FetchTimeout time.Duration

	// Now is the clock for staleness and GC decisions. Default: the store's
	// clock.
	Now func() time.Time

	// Events receives query-fetching, data-went-stale and
	// manual-invalidation events. Nil records nothing.
	Events EventRecorder

	// Observer supplies tracing, metrics and logging. Nil selects observe.Nop.
	Observer observe.Observer
}

// DefaultConfig returns the default configuration.
// RefetchOnRegainFocus: true, RefetchOnStale: false, 4 fetch attempts with
// exponential backoff.
func DefaultConfig() Config {
	return Config{
		RefetchOnRegainFocus: true,
		StaleCheckInterval:   DefaultStaleCheckInterval,
		GCInterval:           DefaultGCInterval,
	}
}

// Validate rejects negative durations.
func (c Config) Validate() error {
	if c.StaleCheckInterval < 0 {
		return fmt.Errorf("%w: negative stale check interval %v", ErrInvalidConfig, c.StaleCheckInterval)
	}
	if c.GCInterval < 0 {
		return fmt.Errorf("%w: negative gc interval %v", ErrInvalidConfig, c.GCInterval)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("%w: negative fetch timeout %v", ErrInvalidConfig, c.FetchTimeout)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.StaleCheckInterval == 0 {
		c.StaleCheckInterval = DefaultStaleCheckInterval
	}
	if c.GCInterval == 0 {
		c.GCInterval = DefaultGCInterval
	}
	if c.Retry == nil {
		c.Retry = resilience.NewRetry(resilience.FetchRetryConfig())
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Observer == nil {
		c.Observer = observe.Nop()
	}
	return c
}
