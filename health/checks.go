package health

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonwraymond/querykit/querycache"
	"github.com/jonwraymond/querykit/storage"
)

// CacheChecker reports on a query cache store. It is degraded while any
// subscribed entry's last fetch failed.
type CacheChecker struct {
	store *querycache.Store
}

// NewCacheChecker creates a checker for store.
func NewCacheChecker(store *querycache.Store) *CacheChecker {
	return &CacheChecker{store: store}
}

// Name returns "cache".
func (c *CacheChecker) Name() string { return "cache" }

// Check counts entries by state.
func (c *CacheChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context canceled", err)
	}

	var subscribed, fetching, failing int
	entries := c.store.Snapshot()
	for _, e := range entries {
		if e.IsFetching() {
			fetching++
		}
		if e.Subscribers == 0 {
			continue
		}
		subscribed++
		if e.Status == querycache.StatusError {
			failing++
		}
	}
	details := map[string]any{
		"entries":    len(entries),
		"subscribed": subscribed,
		"fetching":   fetching,
		"failing":    failing,
	}

	if failing > 0 {
		return Degraded(fmt.Sprintf("%d observed queries failing", failing)).WithDetails(details)
	}
	return Healthy("cache ok").WithDetails(details)
}

// checkBlob is the blob name StorageChecker writes.
const checkBlob = "health-check"

// StorageChecker reports on a blob store. Stores implementing
// storage.Pinger are pinged; others get a test blob saved and read back.
type StorageChecker struct {
	store storage.Store
	now   func() time.Time
}

// NewStorageChecker creates a checker for store.
func NewStorageChecker(store storage.Store) *StorageChecker {
	return &StorageChecker{store: store, now: time.Now}
}

// Name returns "storage".
func (c *StorageChecker) Name() string { return "storage" }

// Check pings the store, or saves and loads a test blob.
func (c *StorageChecker) Check(ctx context.Context) Result {
	details := map[string]any{"driver": string(c.store.Driver())}

	if p, ok := c.store.(storage.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return Unhealthy("storage ping failed", err).WithDetails(details)
		}
		return Healthy("storage reachable").WithDetails(details)
	}

	want := []byte(strconv.FormatInt(c.now().UnixNano(), 10))
	if err := c.store.Save(ctx, checkBlob, want); err != nil {
		return Unhealthy("storage save failed", err).WithDetails(details)
	}
	got, ok, err := c.store.Load(ctx, checkBlob)
	if err != nil {
		return Unhealthy("storage load failed", err).WithDetails(details)
	}
	if !ok || !bytes.Equal(got, want) {
		return Unhealthy("storage round trip mismatch", ErrCheckFailed).WithDetails(details)
	}
	return Healthy("storage round trip ok").WithDetails(details)
}
