package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/querykit/querycache"
	"github.com/jonwraymond/querykit/querykey"
	"github.com/jonwraymond/querykit/storage"
)

func TestCacheChecker(t *testing.T) {
	store, err := querycache.NewStore(querycache.DefaultPolicy())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	checker := NewCacheChecker(store)
	ctx := context.Background()
	now := time.Now()

	if r := checker.Check(ctx); r.Status != StatusHealthy || r.Details["entries"] != 0 {
		t.Errorf("empty cache = %+v", r)
	}

	items := querykey.New("all", "items")
	store.Subscribe(items)
	id := store.NextRequestID()
	store.UpsertFetchStart(items, id)
	if r := checker.Check(ctx); r.Details["fetching"] != 1 || r.Details["subscribed"] != 1 {
		t.Errorf("fetching details = %v", r.Details)
	}

	store.CompleteError(items, id, errors.New("down"), now)
	r := checker.Check(ctx)
	if r.Status != StatusDegraded || r.Details["failing"] != 1 {
		t.Errorf("failing observed query = %+v, want degraded", r)
	}

	// Failures of unobserved entries do not degrade the cache.
	store.Unsubscribe(items, now)
	if r := checker.Check(ctx); r.Status != StatusHealthy {
		t.Errorf("unobserved failure = %v, want healthy", r.Status)
	}
}

func TestCacheChecker_CanceledContext(t *testing.T) {
	store, _ := querycache.NewStore(querycache.DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r := NewCacheChecker(store).Check(ctx); r.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", r.Status)
	}
}

type failingStore struct {
	storage.Store
	saveErr error
	corrupt bool
}

func (s *failingStore) Save(ctx context.Context, name string, blob []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.corrupt {
		blob = []byte("garbage")
	}
	return s.Store.Save(ctx, name, blob)
}

type pingStore struct {
	storage.Store
	err error
}

func (s *pingStore) Ping(context.Context) error { return s.err }

func TestStorageChecker(t *testing.T) {
	errDisk := errors.New("disk full")
	tests := []struct {
		name  string
		store storage.Store
		want  Status
	}{
		{"memory round trip", storage.NewMemory(), StatusHealthy},
		{"save fails", &failingStore{Store: storage.NewMemory(), saveErr: errDisk}, StatusUnhealthy},
		{"round trip mismatch", &failingStore{Store: storage.NewMemory(), corrupt: true}, StatusUnhealthy},
		{"ping ok", &pingStore{Store: storage.NewMemory()}, StatusHealthy},
		{"ping fails", &pingStore{Store: storage.NewMemory(), err: errDisk}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStorageChecker(tt.store).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v (%s), want %v", r.Status, r.Message, tt.want)
			}
			if r.Details["driver"] != "memory" {
				t.Errorf("driver = %v", r.Details["driver"])
			}
		})
	}
}

func TestStorageChecker_SQLite(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, t.TempDir()+"/health.db")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if r := NewStorageChecker(store).Check(ctx); r.Status != StatusHealthy {
		t.Errorf("sqlite = %+v", r)
	}
}
