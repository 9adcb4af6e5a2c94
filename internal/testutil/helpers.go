// Package testutil provides shared test helpers for building sensor fixtures.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TempPath returns a path named name inside a temporary directory that is removed
// when the test completes.
func TempPath(t *testing.T, name string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, name)
	return dir, path
}

// MustNotExist asserts that the file does not exist.
func MustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("expected %s to not exist", path)
	}
}

// Epoch is the fixed start time of generated fixtures.
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Times returns n timestamps starting at Epoch, step apart.
func Times(n int, step time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = Epoch.Add(time.Duration(i) * step)
	}
	return out
}

// Series returns n values produced by f(i).
func Series(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

// Flags returns n flags set at the given indices.
func Flags(n int, set ...int) []bool {
	out := make([]bool, n)
	for _, i := range set {
		out[i] = true
	}
	return out
}

// WithNaN returns a copy of values with NaN at the given indices.
func WithNaN(values []float64, at ...int) []float64 {
	out := append([]float64(nil), values...)
	for _, i := range at {
		out[i] = math.NaN()
	}
	return out
}
