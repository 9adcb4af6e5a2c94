package iotanomaly

import (
	"math"
	"sort"
	"time"
)

// Dataset is a time-indexed set of sensor readings with per-row detection results.
// Row i across every sequence describes one sample.
type Dataset struct {
	// Timestamps holds one timestamp per row. A zero time marks a missing timestamp.
	Timestamps []time.Time

	// Metrics maps a metric name to its readings. NaN marks a missing reading.
	Metrics map[string][]float64

	// IsAnomaly holds the detection flag per row.
	IsAnomaly []bool

	// AnomalyScore holds the detection score per row in [0,1]. NaN marks a missing score.
	AnomalyScore []float64
}

// NewDataset returns an empty dataset with every field allocated.
func NewDataset() *Dataset {
	return &Dataset{
		Timestamps:   []time.Time{},
		Metrics:      map[string][]float64{},
		IsAnomaly:    []bool{},
		AnomalyScore: []float64{},
	}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Timestamps)
}

// Validate checks that all sequences have the same length.
func (d *Dataset) Validate() error {
	n := len(d.Timestamps)
	if len(d.IsAnomaly) != n || len(d.AnomalyScore) != n {
		return ErrLengthMismatch
	}
	for _, values := range d.Metrics {
		if len(values) != n {
			return ErrLengthMismatch
		}
	}
	return nil
}

// MetricNames returns the metric keys in sorted order.
func (d *Dataset) MetricNames() []string {
	names := make([]string, 0, len(d.Metrics))
	for name := range d.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasMetric reports whether the dataset carries a series for name.
func (d *Dataset) HasMetric(name string) bool {
	_, ok := d.Metrics[name]
	return ok
}

// AnomalyCount returns the number of rows flagged anomalous.
func (d *Dataset) AnomalyCount() int {
	n := 0
	for _, a := range d.IsAnomaly {
		if a {
			n++
		}
	}
	return n
}

// metricAt returns the reading of metric at row i and whether it is defined.
func (d *Dataset) metricAt(metric string, i int) (float64, bool) {
	values, ok := d.Metrics[metric]
	if !ok || i < 0 || i >= len(values) {
		return 0, false
	}
	return finite(values[i])
}

// scoreAt returns the score at row i and whether it is defined.
func (d *Dataset) scoreAt(i int) (float64, bool) {
	if i < 0 || i >= len(d.AnomalyScore) {
		return 0, false
	}
	return finite(d.AnomalyScore[i])
}

func (d *Dataset) anomalyAt(i int) bool {
	return i >= 0 && i < len(d.IsAnomaly) && d.IsAnomaly[i]
}

func (d *Dataset) timeAt(i int) (time.Time, bool) {
	if i < 0 || i >= len(d.Timestamps) || d.Timestamps[i].IsZero() {
		return time.Time{}, false
	}
	return d.Timestamps[i], true
}

// gather returns a new dataset holding the rows at indices, in order.
// Sequences shorter than a requested index yield a missing value for that row.
func (d *Dataset) gather(indices []int) Dataset {
	out := Dataset{
		Timestamps:   make([]time.Time, len(indices)),
		Metrics:      make(map[string][]float64, len(d.Metrics)),
		IsAnomaly:    make([]bool, len(indices)),
		AnomalyScore: make([]float64, len(indices)),
	}
	for j, i := range indices {
		if i < len(d.Timestamps) {
			out.Timestamps[j] = d.Timestamps[i]
		}
		out.IsAnomaly[j] = d.anomalyAt(i)
		if i < len(d.AnomalyScore) {
			out.AnomalyScore[j] = d.AnomalyScore[i]
		} else {
			out.AnomalyScore[j] = math.NaN()
		}
	}
	for name, values := range d.Metrics {
		col := make([]float64, len(indices))
		for j, i := range indices {
			if i < len(values) {
				col[j] = values[i]
			} else {
				col[j] = math.NaN()
			}
		}
		out.Metrics[name] = col
	}
	return out
}

func finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
