package iotanomaly

import (
	"math"
	"strconv"
	"strings"
)

const (
	// DistributionBuckets is the bucket count of the metric distribution chart.
	DistributionBuckets = 30
	// ScoreBuckets is the bucket count of the anomaly score chart.
	ScoreBuckets = 15
)

// Buckets holds fixed-width frequency counts with a display label per bucket.
type Buckets struct {
	Labels []string `json:"labels"`
	Counts []int    `json:"counts"`
}

// Total returns the sum of all bucket counts.
func (b Buckets) Total() int {
	total := 0
	for _, c := range b.Counts {
		total += c
	}
	return total
}

// Histogram bins the finite entries of values into bucketCount equal-width buckets
// spanning [min, max]. Non-finite entries are ignored entirely. When every finite value
// is equal the bucket width is 1, so all values land in the first bucket. The maximum
// value is clamped into the last bucket.
func Histogram(values []float64, bucketCount int) Buckets {
	if bucketCount < 1 {
		bucketCount = 1
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	count := 0
	for _, v := range values {
		if _, ok := finite(v); !ok {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		count++
	}
	if count == 0 {
		return Buckets{Labels: []string{}, Counts: []int{}}
	}

	n := float64(bucketCount)
	binSize := 1.0
	// wide is set when hi-lo overflows; edges and offsets are then scaled before
	// subtracting so they stay finite.
	wide := false
	if hi != lo {
		binSize = (hi - lo) / n
		if math.IsInf(binSize, 0) {
			wide = true
			binSize = hi/n - lo/n
		}
	}
	edge := func(i int) float64 {
		if wide {
			return lo/n*(n-float64(i)) + hi/n*float64(i)
		}
		return lo + float64(i)*binSize
	}

	b := Buckets{
		Labels: make([]string, bucketCount),
		Counts: make([]int, bucketCount),
	}
	for i := range b.Labels {
		b.Labels[i] = bucketLabel(edge(i), edge(i+1))
	}
	for _, v := range values {
		if _, ok := finite(v); !ok {
			continue
		}
		offset := (v - lo) / binSize
		if wide {
			offset = v/binSize - lo/binSize
		}
		idx := int(math.Floor(offset))
		b.Counts[min(max(idx, 0), bucketCount-1)]++
	}
	return b
}

func bucketLabel(lo, hi float64) string {
	return oneDecimal(lo) + "-" + oneDecimal(hi)
}

// oneDecimal truncates toward zero rather than rounding. It cuts the shortest decimal
// form so values such as 2.3 are not pulled below their printed digits.
func oneDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	switch {
	case dot < 0:
		s += ".0"
	case len(s) > dot+2:
		s = s[:dot+2]
	}
	if s == "-0.0" {
		return "0.0"
	}
	return s
}

// DistributionHistogram bins the readings of both selected metrics of a view together.
func DistributionHistogram(view *FilteredView, primary, secondary string) Buckets {
	values := make([]float64, 0, 2*view.Len())
	values = append(values, view.Rows.Metrics[primary]...)
	if secondary != primary {
		values = append(values, view.Rows.Metrics[secondary]...)
	}
	return Histogram(values, DistributionBuckets)
}

// ScoreHistogram bins the scores of the anomalous rows of a view.
func ScoreHistogram(view *FilteredView) Buckets {
	scores := make([]float64, 0)
	for i, a := range view.Rows.IsAnomaly {
		if a && i < len(view.Rows.AnomalyScore) {
			scores = append(scores, view.Rows.AnomalyScore[i])
		}
	}
	return Histogram(scores, ScoreBuckets)
}
