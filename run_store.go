package iotanomaly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/google/uuid"
)

const (
	runKeyPrefix  = "runs/"
	infoKeyPrefix = "index/"
	runKeySuffix  = ".json.sz"
)

func runKey(id string) string  { return runKeyPrefix + id + runKeySuffix }
func infoKey(id string) string { return infoKeyPrefix + id + runKeySuffix }

// RunStore persists analysis runs in a StorageBackend. Each run is stored twice: the
// full run and a small list entry, both JSON compressed with snappy and optionally
// encrypted.
type RunStore struct {
	backend StorageBackend
	enc     *Encryptor
	maxRuns int

	mu     sync.Mutex
	closed bool
}

// NewRunStore wraps backend. enc may be nil. maxRuns <= 0 keeps every run.
func NewRunStore(backend StorageBackend, enc *Encryptor, maxRuns int) *RunStore {
	return &RunStore{backend: backend, enc: enc, maxRuns: maxRuns}
}

// OpenRunStore opens the backend and encryptor described by cfg.
func OpenRunStore(ctx context.Context, cfg StorageConfig) (*RunStore, error) {
	backend, err := NewStorageBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	enc, err := NewEncryptor(cfg.Encryption)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return NewRunStore(backend, enc, cfg.MaxRuns), nil
}

// Backend returns the underlying storage backend.
func (s *RunStore) Backend() StorageBackend {
	return s.backend
}

func validRunID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Save writes run and evicts the oldest runs above the configured maximum.
func (s *RunStore) Save(ctx context.Context, run *AnalysisRun) error {
	if run == nil || !validRunID(run.ID) {
		return fmt.Errorf("save run: invalid run id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	blob, err := s.encode(run)
	if err != nil {
		return newStorageError(StorageErrorTypeWrite, "encode run", run.ID, err)
	}
	info, err := s.encode(run.Info())
	if err != nil {
		return newStorageError(StorageErrorTypeWrite, "encode run info", run.ID, err)
	}
	if err := s.backend.Write(ctx, runKey(run.ID), blob); err != nil {
		return newStorageError(StorageErrorTypeWrite, "write run", run.ID, err)
	}
	if err := s.backend.Write(ctx, infoKey(run.ID), info); err != nil {
		// Without its index entry the run blob is unreachable.
		if derr := s.backend.Delete(ctx, runKey(run.ID)); derr != nil {
			slog.Warn("run cleanup failed", "run_id", run.ID, "err", derr)
		}
		return newStorageError(StorageErrorTypeWrite, "write run info", run.ID, err)
	}
	return s.evict(ctx)
}

// Get loads the run with the given id.
func (s *RunStore) Get(ctx context.Context, id string) (*AnalysisRun, error) {
	if !validRunID(id) {
		return nil, newStorageError(StorageErrorTypeNotFound, "run not found", id, nil)
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	blob, err := s.backend.Read(ctx, runKey(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, newStorageError(StorageErrorTypeNotFound, "run not found", id, nil)
	}
	if err != nil {
		return nil, newStorageError(StorageErrorTypeRead, "read run", id, err)
	}
	var run AnalysisRun
	if err := s.decode(blob, &run); err != nil {
		return nil, newStorageError(StorageErrorTypeCorruption, "decode run", id, err)
	}
	if run.Chart == nil {
		run.Chart = NewDataset()
	}
	if err := run.Chart.Validate(); err != nil {
		return nil, newStorageError(StorageErrorTypeCorruption, "decode run", id, err)
	}
	return &run, nil
}

// List returns every stored run, newest first.
func (s *RunStore) List(ctx context.Context) ([]RunInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.list(ctx)
}

func (s *RunStore) list(ctx context.Context) ([]RunInfo, error) {
	keys, err := s.backend.List(ctx, infoKeyPrefix)
	if err != nil {
		return nil, newStorageError(StorageErrorTypeRead, "list runs", "", err)
	}

	infos := make([]RunInfo, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, runKeySuffix) {
			continue
		}
		blob, err := s.backend.Read(ctx, key)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, newStorageError(StorageErrorTypeRead, "read run info", key, err)
		}
		var info RunInfo
		if err := s.decode(blob, &info); err != nil {
			return nil, newStorageError(StorageErrorTypeCorruption, "decode run info", key, err)
		}
		infos = append(infos, info)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

// Delete removes a run. Missing runs report ErrRunNotFound.
func (s *RunStore) Delete(ctx context.Context, id string) error {
	if !validRunID(id) {
		return newStorageError(StorageErrorTypeNotFound, "run not found", id, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.delete(ctx, id)
}

func (s *RunStore) delete(ctx context.Context, id string) error {
	ok, err := s.backend.Exists(ctx, runKey(id))
	if err != nil {
		return newStorageError(StorageErrorTypeRead, "check run", id, err)
	}
	if !ok {
		return newStorageError(StorageErrorTypeNotFound, "run not found", id, nil)
	}
	if err := s.backend.Delete(ctx, infoKey(id)); err != nil {
		return newStorageError(StorageErrorTypeWrite, "delete run info", id, err)
	}
	if err := s.backend.Delete(ctx, runKey(id)); err != nil {
		return newStorageError(StorageErrorTypeWrite, "delete run", id, err)
	}
	return nil
}

// Count returns the number of stored runs.
func (s *RunStore) Count(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	keys, err := s.backend.List(ctx, infoKeyPrefix)
	if err != nil {
		return 0, newStorageError(StorageErrorTypeRead, "list runs", "", err)
	}
	return len(keys), nil
}

// Close closes the backend.
func (s *RunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}

func (s *RunStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// evict drops the oldest runs above maxRuns. Callers hold s.mu.
func (s *RunStore) evict(ctx context.Context) error {
	if s.maxRuns <= 0 {
		return nil
	}
	infos, err := s.list(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos[min(len(infos), s.maxRuns):] {
		if err := s.delete(ctx, info.ID); err != nil && !errors.Is(err, ErrRunNotFound) {
			return err
		}
	}
	return nil
}

func (s *RunStore) encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	blob := snappy.Encode(nil, raw)
	if s.enc != nil {
		return s.enc.Encrypt(blob)
	}
	return blob, nil
}

func (s *RunStore) decode(blob []byte, v any) error {
	if IsEncrypted(blob) {
		if s.enc == nil {
			return errors.New("run is encrypted but no key is configured")
		}
		plain, err := s.enc.Decrypt(blob)
		if err != nil {
			return err
		}
		blob = plain
	}
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
