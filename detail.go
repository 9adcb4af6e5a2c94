package iotanomaly

import (
	"fmt"
	"time"
)

// DetailContextRows is the default number of rows shown on each side of an anomaly.
const DetailContextRows = 10

// ContextRow is one row around an anomaly in the detail view.
type ContextRow struct {
	Index          int       `json:"index"`
	Time           time.Time `json:"time"`
	PrimaryValue   *float64  `json:"primary_value"`
	SecondaryValue *float64  `json:"secondary_value"`
	Score          *float64  `json:"score"`
	IsAnomaly      bool      `json:"is_anomaly"`
	// Focus marks the anomaly the detail was requested for.
	Focus bool `json:"focus"`
}

// AnomalyDetail describes one anomalous row together with its neighbourhood.
type AnomalyDetail struct {
	Record    AnomalyRecord `json:"record"`
	Primary   string        `json:"primary"`
	Secondary string        `json:"secondary"`
	Context   []ContextRow  `json:"context"`
}

// DetailFor builds the detail of the anomaly at row index of ds, with up to
// contextRows rows on each side. The row must be anomalous and carry both metrics,
// a score and a timestamp.
func DetailFor(ds *Dataset, index int, primary, secondary string, contextRows int) (*AnomalyDetail, error) {
	if index < 0 || index >= ds.Len() {
		return nil, fmt.Errorf("%w: row %d outside [0,%d)", ErrInvalidRange, index, ds.Len())
	}
	if !ds.anomalyAt(index) {
		return nil, fmt.Errorf("%w: row %d is not an anomaly", ErrInvalidRange, index)
	}
	if contextRows < 0 {
		contextRows = DetailContextRows
	}

	p, okP := ds.metricAt(primary, index)
	s, okS := ds.metricAt(secondary, index)
	score, okScore := ds.scoreAt(index)
	ts, okTime := ds.timeAt(index)
	if !okP || !okS || !okScore || !okTime {
		return nil, fmt.Errorf("%w: row %d has missing values", ErrInvalidRange, index)
	}

	d := &AnomalyDetail{
		Record: AnomalyRecord{
			Time:           ts,
			PrimaryValue:   p,
			SecondaryValue: s,
			Score:          score,
			Severity:       SeverityFor(score),
			OriginalIndex:  index,
		},
		Primary:   primary,
		Secondary: secondary,
	}

	lo := max(0, index-contextRows)
	hi := min(ds.Len()-1, index+contextRows)
	d.Context = make([]ContextRow, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		row := ContextRow{
			Index:     i,
			IsAnomaly: ds.anomalyAt(i),
			Focus:     i == index,
		}
		if t, ok := ds.timeAt(i); ok {
			row.Time = t
		}
		row.PrimaryValue = optional(ds.metricAt(primary, i))
		row.SecondaryValue = optional(ds.metricAt(secondary, i))
		row.Score = optional(ds.scoreAt(i))
		d.Context = append(d.Context, row)
	}
	return d, nil
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
