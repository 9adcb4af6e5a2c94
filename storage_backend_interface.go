package iotanomaly

import (
	"context"
	"fmt"
	"path/filepath"
)

// StorageBackend stores opaque run blobs by key.
// Read returns an error satisfying errors.Is(err, os.ErrNotExist) for missing keys.
type StorageBackend interface {
	// Read reads a blob from storage.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write writes a blob to storage, replacing any previous value.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes a blob from storage.
	Delete(ctx context.Context, key string) error

	// List returns all keys matching a prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if a blob exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases any resources.
	Close() error
}

// Ensure interfaces are implemented
var (
	_ StorageBackend = (*FileBackend)(nil)
	_ StorageBackend = (*S3Backend)(nil)
	_ StorageBackend = (*MemoryBackend)(nil)
	_ StorageBackend = (*SQLiteBackend)(nil)
)

// NewStorageBackend opens the backend selected by cfg.Backend.
func NewStorageBackend(ctx context.Context, cfg StorageConfig) (StorageBackend, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "file":
		return NewFileBackend(cfg.Path)
	case "sqlite":
		path := cfg.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "runs.db")
		}
		sc := DefaultSQLiteBackendConfig()
		sc.Path = path
		return NewSQLiteBackend(sc)
	case "s3":
		return NewS3Backend(ctx, cfg.S3)
	}
	return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
}
