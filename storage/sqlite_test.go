package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blobs.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.Save(ctx, "event-log-filter-storage", []byte(`{"state":{"includedTypes":[]},"version":0}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Load(ctx, "event-log-filter-storage")
	if err != nil || !ok {
		t.Fatalf("Load = ok %v, err %v", ok, err)
	}
	if string(got) != `{"state":{"includedTypes":[]},"version":0}` {
		t.Errorf("Load = %s", got)
	}
}

func TestSQLiteStore_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Save(ctx, "k", nil); err != nil {
		t.Fatalf("Save nil blob: %v", err)
	}
	got, ok, err := s.Load(ctx, "k")
	if err != nil || !ok || len(got) != 0 {
		t.Errorf("Load = %q, %v, %v; want empty, true, nil", got, ok, err)
	}
}

func TestSQLiteStore_CloseNil(t *testing.T) {
	var s *SQLiteStore
	if err := s.Close(); err != nil {
		t.Errorf("nil Close = %v", err)
	}
}
