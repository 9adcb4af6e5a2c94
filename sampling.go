package iotanomaly

import (
	"math/rand"
	"sort"
)

// MaxChartPoints is the default cap on rows stored for charting.
const MaxChartPoints = 2000

// chartSampleSeed makes normal-row sampling reproducible.
const chartSampleSeed = 42

// SampleForChart caps ds at maxPoints rows for charting and reports whether rows were
// dropped. Every anomalous row is kept, even when anomalies alone exceed maxPoints;
// the remaining budget is filled with a seeded random sample of normal rows. The
// result is ordered by timestamp, with rows lacking a timestamp last in source order.
func SampleForChart(ds *Dataset, maxPoints int) (*Dataset, bool) {
	n := ds.Len()
	if maxPoints <= 0 || n <= maxPoints {
		all := ds.gather(identity(n))
		return &all, false
	}

	var anomalies, normal []int
	for i := 0; i < n; i++ {
		if ds.anomalyAt(i) {
			anomalies = append(anomalies, i)
		} else {
			normal = append(normal, i)
		}
	}

	keep := anomalies
	if budget := maxPoints - len(anomalies); budget > 0 {
		if len(normal) > budget {
			rng := rand.New(rand.NewSource(chartSampleSeed))
			picked := rng.Perm(len(normal))[:budget]
			sampled := make([]int, budget)
			for i, p := range picked {
				sampled[i] = normal[p]
			}
			normal = sampled
		}
		keep = append(keep, normal...)
	}

	sort.SliceStable(keep, func(a, b int) bool {
		ta, okA := ds.timeAt(keep[a])
		tb, okB := ds.timeAt(keep[b])
		switch {
		case okA && okB:
			if !ta.Equal(tb) {
				return ta.Before(tb)
			}
			return keep[a] < keep[b]
		case okA != okB:
			return okA
		default:
			return keep[a] < keep[b]
		}
	})

	out := ds.gather(keep)
	return &out, true
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
