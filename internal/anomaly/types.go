package anomaly

import "math"

// Rows converts column-oriented features into rows, in the order of names.
// A column shorter than the longest one is padded with NaN.
func Rows(columns map[string][]float64, names []string) [][]float64 {
	n := 0
	for _, name := range names {
		n = max(n, len(columns[name]))
	}
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, len(names))
		for j, name := range names {
			col := columns[name]
			if i < len(col) {
				row[j] = col[i]
			} else {
				row[j] = math.NaN()
			}
		}
		rows[i] = row
	}
	return rows
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
