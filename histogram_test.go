package iotanomaly

import (
	"math"
	"strings"
	"testing"
)

func TestHistogram_Empty(t *testing.T) {
	b := Histogram(nil, 10)
	if len(b.Counts) != 0 || len(b.Labels) != 0 {
		t.Errorf("expected empty buckets, got %+v", b)
	}
	if b.Counts == nil || b.Labels == nil {
		t.Error("expected non-nil slices")
	}

	onlyNaN := Histogram([]float64{math.NaN(), math.Inf(1)}, 5)
	if len(onlyNaN.Counts) != 0 {
		t.Errorf("non-finite values should be ignored, got %+v", onlyNaN)
	}
}

func TestHistogram_Constant(t *testing.T) {
	b := Histogram([]float64{5, 5, 5}, 4)
	if len(b.Counts) != 4 {
		t.Fatalf("expected 4 buckets, got %d", len(b.Counts))
	}
	if b.Counts[0] != 3 {
		t.Errorf("expected all values in the first bucket, got %v", b.Counts)
	}
	if b.Labels[0] != "5.0-6.0" {
		t.Errorf("unexpected label %q", b.Labels[0])
	}
}

func TestHistogram_Spread(t *testing.T) {
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, math.NaN()}
	b := Histogram(values, 5)

	if b.Total() != 11 {
		t.Errorf("expected 11 counted values, got %d", b.Total())
	}
	// The maximum is clamped into the last bucket.
	want := []int{2, 2, 2, 2, 3}
	for i := range want {
		if b.Counts[i] != want[i] {
			t.Fatalf("counts = %v, want %v", b.Counts, want)
		}
	}
	if b.Labels[0] != "0.0-2.0" || b.Labels[4] != "8.0-10.0" {
		t.Errorf("unexpected labels %v", b.Labels)
	}
}

func TestHistogram_BucketCountFloor(t *testing.T) {
	b := Histogram([]float64{1, 2, 3}, 0)
	if len(b.Counts) != 1 || b.Counts[0] != 3 {
		t.Errorf("expected a single bucket, got %+v", b)
	}
}

func TestDistributionAndScoreHistograms(t *testing.T) {
	ds := fixtureDataset(20, 4, 9)
	view := FilterByRange(ds, RangeAll)

	dist := DistributionHistogram(view, "temperature", "humidity")
	if len(dist.Counts) != DistributionBuckets {
		t.Errorf("expected %d buckets, got %d", DistributionBuckets, len(dist.Counts))
	}
	if dist.Total() != 40 {
		t.Errorf("expected both metrics binned, got %d", dist.Total())
	}

	same := DistributionHistogram(view, "temperature", "temperature")
	if same.Total() != 20 {
		t.Errorf("a metric selected twice should be binned once, got %d", same.Total())
	}

	scores := ScoreHistogram(view)
	if len(scores.Counts) != ScoreBuckets || scores.Total() != 2 {
		t.Errorf("expected 2 anomaly scores in %d buckets, got %+v", ScoreBuckets, scores)
	}
}

func TestHistogram_LabelsTruncate(t *testing.T) {
	b := Histogram([]float64{0.25, 2.75}, 1)
	if b.Labels[0] != "0.2-2.7" {
		t.Errorf("label = %q, want 0.2-2.7", b.Labels[0])
	}
	for v, want := range map[float64]string{-0.04: "0.0", -1.27: "-1.2", 7: "7.0", 12.999: "12.9", 2.3: "2.3"} {
		if got := oneDecimal(v); got != want {
			t.Errorf("oneDecimal(%v) = %q, want %q", v, got, want)
		}
	}
}

func TestHistogram_HugeRange(t *testing.T) {
	b := Histogram([]float64{-1e308, 0, 1e308}, 4)

	want := []int{1, 0, 1, 1}
	for i := range want {
		if b.Counts[i] != want[i] {
			t.Fatalf("counts = %v, want %v", b.Counts, want)
		}
	}
	for _, l := range b.Labels {
		if strings.Contains(l, "NaN") || strings.Contains(l, "Inf") {
			t.Errorf("non-finite label %q", l)
		}
	}
}
