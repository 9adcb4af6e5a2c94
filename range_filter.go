package iotanomaly

import (
	"fmt"
	"strings"
)

// RangeKind names a window of rows to display.
type RangeKind string

const (
	// RangeAll keeps every row.
	RangeAll RangeKind = "all"
	// RangeLast50 keeps the most recent 50 rows.
	RangeLast50 RangeKind = "last50"
	// RangeLast100 keeps the most recent 100 rows.
	RangeLast100 RangeKind = "last100"
	// RangeLast1000 keeps the most recent 1000 rows.
	RangeLast1000 RangeKind = "last1000"
	// RangeAnomalies keeps only rows flagged anomalous.
	RangeAnomalies RangeKind = "anomalies"
)

// RangeKinds lists the supported windows in display order.
var RangeKinds = []RangeKind{RangeAll, RangeLast50, RangeLast100, RangeLast1000, RangeAnomalies}

// ParseRangeKind parses a window name. The empty string selects RangeAll.
func ParseRangeKind(s string) (RangeKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RangeAll, nil
	}
	for _, k := range RangeKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRange, s)
}

// lastK returns the tail size for last-K windows, or 0 for other kinds.
func (k RangeKind) lastK() int {
	switch k {
	case RangeLast50:
		return 50
	case RangeLast100:
		return 100
	case RangeLast1000:
		return 1000
	}
	return 0
}

// FilteredView is the subset of a dataset retained by a window.
// Rows are re-indexed to match Indices; Indices refer to positions in the source dataset.
type FilteredView struct {
	Range   RangeKind `json:"range"`
	Indices []int     `json:"indices"`
	Rows    Dataset   `json:"rows"`
}

// Len returns the number of retained rows.
func (v *FilteredView) Len() int {
	return len(v.Indices)
}

// FilterByRange returns the rows of ds retained by kind.
// Indices are ascending and unique. An empty source or an empty selection yields a view
// whose fields are all empty but non-nil. ds must not be nil. Unknown kinds behave as RangeAll.
func FilterByRange(ds *Dataset, kind RangeKind) *FilteredView {
	n := ds.Len()

	var indices []int
	switch {
	case kind == RangeAnomalies:
		indices = make([]int, 0)
		for i := 0; i < n; i++ {
			if ds.anomalyAt(i) {
				indices = append(indices, i)
			}
		}
	case kind.lastK() > 0:
		start := max(0, n-kind.lastK())
		indices = make([]int, 0, n-start)
		for i := start; i < n; i++ {
			indices = append(indices, i)
		}
	default:
		if kind != RangeAll {
			kind = RangeAll
		}
		indices = make([]int, n)
		for i := range indices {
			indices[i] = i
		}
	}

	return &FilteredView{
		Range:   kind,
		Indices: indices,
		Rows:    ds.gather(indices),
	}
}
