package iotanomaly

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kandarlubis31/iot-anomaly-detector/internal/testutil"
)

func testRun(created time.Time) *AnalysisRun {
	chart := fixtureDataset(20, 4, 11)
	return &AnalysisRun{
		ID:            uuid.NewString(),
		CreatedAt:     created,
		Source:        SourceUpload,
		Name:          "sensors.csv",
		Contamination: 0.05,
		Detection:     Detection{Model: "isolation_forest", Contamination: 0.05, Features: []string{"humidity", "temperature"}, FittedRows: 20},
		Summary:       Summarize(chart),
		Chart:         chart,
	}
}

func TestRunStore_Backends(t *testing.T) {
	dir := t.TempDir()
	configs := map[string]StorageConfig{
		"memory": {Backend: "memory"},
		"file":   {Backend: "file", Path: filepath.Join(dir, "files")},
		"sqlite": {Backend: "sqlite", Path: filepath.Join(dir, "runs.db")},
		"encrypted": {Backend: "memory", Encryption: EncryptionConfig{
			Enabled:     true,
			KeyPassword: "sensor-secret",
		}},
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store, err := OpenRunStore(ctx, cfg)
			if err != nil {
				t.Fatalf("OpenRunStore: %v", err)
			}
			defer store.Close()

			run := testRun(testutil.Epoch)
			if err := store.Save(ctx, run); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := store.Get(ctx, run.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Name != run.Name || got.Summary != run.Summary || got.Detection.Model != "isolation_forest" {
				t.Errorf("unexpected run %+v", got)
			}
			if got.Chart.Len() != 20 || got.Chart.AnomalyCount() != 2 {
				t.Errorf("chart not preserved: %d rows, %d anomalies", got.Chart.Len(), got.Chart.AnomalyCount())
			}
			if !got.Chart.Timestamps[3].Equal(run.Chart.Timestamps[3]) {
				t.Error("timestamps not preserved")
			}

			infos, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(infos) != 1 || infos[0].ID != run.ID || infos[0].ChartPoints != 20 {
				t.Errorf("unexpected list %+v", infos)
			}

			if err := store.Delete(ctx, run.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := store.Get(ctx, run.ID); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("expected ErrRunNotFound after delete, got %v", err)
			}
			if n, _ := store.Count(ctx); n != 0 {
				t.Errorf("expected empty store, got %d", n)
			}
		})
	}
}

// indexFailBackend rejects writes of run index entries.
type indexFailBackend struct {
	*MemoryBackend
}

func (b indexFailBackend) Write(ctx context.Context, key string, data []byte) error {
	if strings.HasPrefix(key, infoKeyPrefix) {
		return errors.New("disk full")
	}
	return b.MemoryBackend.Write(ctx, key, data)
}

func TestRunStore_SaveCleansUpOnIndexFailure(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	store := NewRunStore(indexFailBackend{mem}, nil, 0)

	run := testRun(testutil.Epoch)
	err := store.Save(ctx, run)
	var se *StorageError
	if !errors.As(err, &se) || se.Type != StorageErrorTypeWrite {
		t.Fatalf("expected write StorageError, got %v", err)
	}
	if ok, _ := mem.Exists(ctx, runKey(run.ID)); ok {
		t.Error("run blob left behind after index write failure")
	}
	if mem.Size() != 0 {
		t.Errorf("expected empty backend, got %d keys", mem.Size())
	}
}

func TestRunStore_NotFound(t *testing.T) {
	store := NewRunStore(NewMemoryBackend(), nil, 0)
	ctx := context.Background()

	for _, id := range []string{"not-a-uuid", "../../etc/passwd", uuid.NewString()} {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("Get(%q): expected ErrRunNotFound, got %v", id, err)
		}
		if err := store.Delete(ctx, id); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("Delete(%q): expected ErrRunNotFound, got %v", id, err)
		}
	}

	if err := store.Save(ctx, &AnalysisRun{ID: "bad"}); err == nil {
		t.Error("expected error saving a run with an invalid id")
	}
}

func TestRunStore_ListOrderAndEviction(t *testing.T) {
	store := NewRunStore(NewMemoryBackend(), nil, 3)
	ctx := context.Background()

	var runs []*AnalysisRun
	for i := 0; i < 5; i++ {
		run := testRun(testutil.Epoch.Add(time.Duration(i) * time.Hour))
		runs = append(runs, run)
		if err := store.Save(ctx, run); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	infos, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 runs after eviction, got %d", len(infos))
	}
	for i, want := range []int{4, 3, 2} {
		if infos[i].ID != runs[want].ID {
			t.Errorf("position %d: expected run %d", i, want)
		}
	}
	if _, err := store.Get(ctx, runs[0].ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("oldest run should be evicted, got %v", err)
	}
}

func TestRunStore_EncryptedWithoutKey(t *testing.T) {
	backend := NewMemoryBackend()
	enc, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	run := testRun(testutil.Epoch)
	if err := NewRunStore(backend, enc, 0).Save(ctx, run); err != nil {
		t.Fatal(err)
	}

	_, err = NewRunStore(backend, nil, 0).Get(ctx, run.ID)
	var se *StorageError
	if !errors.As(err, &se) || se.Type != StorageErrorTypeCorruption {
		t.Errorf("expected corruption error without a key, got %v", err)
	}
}

func TestRunStore_Closed(t *testing.T) {
	store := NewRunStore(NewMemoryBackend(), nil, 0)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, testRun(testutil.Epoch)); !errors.Is(err, ErrClosed) {
		t.Errorf("Save: expected ErrClosed, got %v", err)
	}
	if _, err := store.List(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("List: expected ErrClosed, got %v", err)
	}
}
