package iotanomaly

import (
	"sort"
	"time"
)

// AnomalyPageSize is the number of ranked anomalies shown per page.
const AnomalyPageSize = 50

// Severity classifies an anomaly score for display.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SeverityFor maps a score to its severity level.
func SeverityFor(score float64) Severity {
	switch {
	case score >= 0.8:
		return SeverityCritical
	case score >= 0.6:
		return SeverityHigh
	case score >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AnomalyRecord is one anomalous row prepared for the ranked list and the detail view.
type AnomalyRecord struct {
	Time           time.Time `json:"time"`
	PrimaryValue   float64   `json:"primary_value"`
	SecondaryValue float64   `json:"secondary_value"`
	Score          float64   `json:"score"`
	Severity       Severity  `json:"severity"`
	// OriginalIndex is the row position in the source dataset.
	OriginalIndex int `json:"original_index"`
}

// RankAnomalies returns the anomalous rows of view ordered by score, highest first.
// Rows missing the primary value, the secondary value, the score or the timestamp are
// skipped. Equal scores keep their original row order. At most limit records are returned.
func RankAnomalies(view *FilteredView, primary, secondary string, limit int) []AnomalyRecord {
	if limit <= 0 {
		return []AnomalyRecord{}
	}

	rows := &view.Rows
	records := make([]AnomalyRecord, 0)
	for i := range view.Indices {
		if !rows.anomalyAt(i) {
			continue
		}
		p, ok := rows.metricAt(primary, i)
		if !ok {
			continue
		}
		s, ok := rows.metricAt(secondary, i)
		if !ok {
			continue
		}
		score, ok := rows.scoreAt(i)
		if !ok {
			continue
		}
		ts, ok := rows.timeAt(i)
		if !ok {
			continue
		}
		records = append(records, AnomalyRecord{
			Time:           ts,
			PrimaryValue:   p,
			SecondaryValue: s,
			Score:          score,
			Severity:       SeverityFor(score),
			OriginalIndex:  view.Indices[i],
		})
	}

	sort.SliceStable(records, func(a, b int) bool {
		return records[a].Score > records[b].Score
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records
}

// PageAnomalies returns the records in [offset, offset+pageSize). Out-of-range offsets
// yield an empty page.
func PageAnomalies(records []AnomalyRecord, offset, pageSize int) []AnomalyRecord {
	if pageSize <= 0 {
		pageSize = AnomalyPageSize
	}
	if offset < 0 || offset >= len(records) {
		return []AnomalyRecord{}
	}
	end := min(offset+pageSize, len(records))
	return records[offset:end]
}
