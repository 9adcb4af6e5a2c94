package iotanomaly

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}

	ctx := context.Background()

	if err := backend.Write(ctx, "runs/key1", []byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := backend.Read(ctx, "runs/key1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected 'hello', got '%s'", data)
	}

	exists, err := backend.Exists(ctx, "runs/key1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected key to exist")
	}

	keys, err := backend.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "runs/key1" {
		t.Errorf("expected [runs/key1], got %v", keys)
	}

	if err := backend.Delete(ctx, "runs/key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, _ = backend.Exists(ctx, "runs/key1")
	if exists {
		t.Error("expected key to be deleted")
	}
	if _, err := backend.Read(ctx, "runs/key1"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not exist error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "runs", "key1")); err == nil {
		t.Error("expected file to be removed")
	}
}

func TestMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	if err := backend.Write(ctx, "key1", []byte("value1")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := backend.Read(ctx, "key1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "value1" {
		t.Errorf("expected 'value1', got '%s'", data)
	}

	// Returned slices must not alias stored data.
	data[0] = 'X'
	again, _ := backend.Read(ctx, "key1")
	if string(again) != "value1" {
		t.Errorf("stored value was modified through a read: %q", again)
	}

	if backend.Size() != 1 {
		t.Errorf("expected size 1, got %d", backend.Size())
	}

	_, err = backend.Read(ctx, "nonexistent")
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("expected not exist error")
	}

	_ = backend.Write(ctx, "prefix/b", []byte("b"))
	_ = backend.Write(ctx, "prefix/a", []byte("a"))
	_ = backend.Write(ctx, "other/c", []byte("c"))

	keys, _ := backend.List(ctx, "prefix/")
	if len(keys) != 2 || keys[0] != "prefix/a" || keys[1] != "prefix/b" {
		t.Errorf("expected sorted prefix keys, got %v", keys)
	}

	_ = backend.Delete(ctx, "key1")
	exists, _ := backend.Exists(ctx, "key1")
	if exists {
		t.Error("expected key to be deleted")
	}

	if err := backend.Close(); err != nil {
		t.Fatal(err)
	}
	if err := backend.Write(ctx, "key2", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(3)

	cache.Put("a", []byte("1"))
	cache.Put("b", []byte("2"))
	cache.Put("c", []byte("3"))

	if _, ok := cache.Get("a"); !ok {
		t.Error("expected 'a' to exist")
	}

	// 'b' is now least recently used.
	cache.Put("d", []byte("4"))
	if cache.Len() != 3 {
		t.Errorf("cache exceeded capacity: %d items", cache.Len())
	}
	if _, ok := cache.Get("b"); ok {
		t.Error("expected 'b' to be evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Error("expected 'a' to survive eviction")
	}

	cache.Delete("a")
	if _, ok := cache.Get("a"); ok {
		t.Error("expected 'a' to be deleted")
	}
}

func TestNewStorageBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     StorageConfig
		want    string
		wantErr bool
	}{
		{"default", StorageConfig{}, "*iotanomaly.MemoryBackend", false},
		{"memory", StorageConfig{Backend: "memory"}, "*iotanomaly.MemoryBackend", false},
		{"file", StorageConfig{Backend: "file", Path: filepath.Join(dir, "files")}, "*iotanomaly.FileBackend", false},
		{"sqlite dir", StorageConfig{Backend: "sqlite", Path: filepath.Join(dir, "db")}, "*iotanomaly.SQLiteBackend", false},
		{"unknown", StorageConfig{Backend: "floppy"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cfg.Backend == "sqlite" {
				if err := os.MkdirAll(tt.cfg.Path, 0o755); err != nil {
					t.Fatal(err)
				}
			}
			b, err := NewStorageBackend(ctx, tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewStorageBackend: %v", err)
			}
			defer b.Close()
			if got := typeName(b); got != tt.want {
				t.Errorf("backend type = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(b StorageBackend) string {
	switch b.(type) {
	case *MemoryBackend:
		return "*iotanomaly.MemoryBackend"
	case *FileBackend:
		return "*iotanomaly.FileBackend"
	case *SQLiteBackend:
		return "*iotanomaly.SQLiteBackend"
	case *S3Backend:
		return "*iotanomaly.S3Backend"
	}
	return "unknown"
}

func TestFileBackend_PathTraversal(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}

	ctx := context.Background()

	traversalKeys := []string{
		"../etc/passwd",
		"runs/../../../etc/passwd",
		"runs/a/../../../../../../etc/passwd",
	}

	for _, key := range traversalKeys {
		t.Run("Read_"+key, func(t *testing.T) {
			if _, err := backend.Read(ctx, key); err == nil {
				t.Errorf("expected error for path traversal key %q, got nil", key)
			}
		})
		t.Run("Write_"+key, func(t *testing.T) {
			if err := backend.Write(ctx, key, []byte("malicious")); err == nil {
				t.Errorf("expected error for path traversal key %q, got nil", key)
			}
		})
		t.Run("Delete_"+key, func(t *testing.T) {
			if err := backend.Delete(ctx, key); err == nil {
				t.Errorf("expected error for path traversal key %q, got nil", key)
			}
		})
		t.Run("Exists_"+key, func(t *testing.T) {
			if _, err := backend.Exists(ctx, key); err == nil {
				t.Errorf("expected error for path traversal key %q, got nil", key)
			}
		})
	}

	validKeys := []string{
		"runs/5f0c/data.json.sz",
		"index/abc.json.sz",
		"a/b/c/d/e/f",
	}
	for _, key := range validKeys {
		t.Run("ValidKey_"+key, func(t *testing.T) {
			if err := backend.Write(ctx, key, []byte("valid")); err != nil {
				t.Errorf("Write failed for valid key %q: %v", key, err)
			}
			data, err := backend.Read(ctx, key)
			if err != nil {
				t.Errorf("Read failed for valid key %q: %v", key, err)
			}
			if string(data) != "valid" {
				t.Errorf("expected 'valid', got '%s'", data)
			}
		})
	}
}
