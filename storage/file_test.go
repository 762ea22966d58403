package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_WritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if err := s.Save(context.Background(), "event-log-storage", []byte(`{"version":0}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "event-log-storage.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"version":0}` {
		t.Errorf("file = %s", data)
	}
}

func TestFileStore_FailedRenameKeepsOldBlob(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	ctx := context.Background()
	if err := s.Save(ctx, "blob", []byte("old")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	renameErr := errors.New("disk full")
	renameFile = func(string, string) error { return renameErr }
	t.Cleanup(func() { renameFile = os.Rename })

	if err := s.Save(ctx, "blob", []byte("new")); !errors.Is(err, renameErr) {
		t.Fatalf("Save error = %v, want %v", err, renameErr)
	}
	got, _, _ := s.Load(ctx, "blob")
	if string(got) != "old" {
		t.Errorf("Load = %s, want old", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

func TestNewFile_RequiresDir(t *testing.T) {
	if _, err := NewFile(""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewFile(\"\") error = %v, want ErrNotConfigured", err)
	}
}
