package fetch

import (
	"sync"

	"github.com/jonwraymond/querykit/querycache"
	"github.com/jonwraymond/querykit/querykey"
)

// Subscription is one observer's lease on a key. Close releases it.
type Subscription struct {
	c    *Coordinator
	key  querykey.Key
	once sync.Once
}

// Key returns the observed key.
func (s *Subscription) Key() querykey.Key {
	return s.key
}

// Entry returns the current cache entry for the key.
func (s *Subscription) Entry() (querycache.Entry, bool) {
	return s.c.store.Get(s.key)
}

// Close releases the subscription. A fetch in flight is not canceled and
// its result is still applied. Close is idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() { s.c.release(s.key) })
}
