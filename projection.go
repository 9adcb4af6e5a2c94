package iotanomaly

import (
	"fmt"
	"strings"
)

// DisplayMode selects how the main trend chart renders rows.
type DisplayMode string

const (
	// DisplayLine renders normal rows as lines.
	DisplayLine DisplayMode = "line"
	// DisplayScatter renders anomalous rows as scatter points.
	DisplayScatter DisplayMode = "scatter"
	// DisplayBoth renders lines and scatter points together.
	DisplayBoth DisplayMode = "both"
)

// ParseDisplayMode parses a display mode. The empty string selects DisplayLine.
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch DisplayMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DisplayLine:
		return DisplayLine, nil
	case DisplayScatter:
		return DisplayScatter, nil
	case DisplayBoth:
		return DisplayBoth, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDisplayMode, s)
}

func (m DisplayMode) lines() bool   { return m == DisplayLine || m == DisplayBoth }
func (m DisplayMode) scatter() bool { return m == DisplayScatter || m == DisplayBoth }

// SeriesKind is the render style of a series.
type SeriesKind string

const (
	SeriesLine        SeriesKind = "line"
	SeriesScatter     SeriesKind = "scatter"
	SeriesPlaceholder SeriesKind = "placeholder"
)

// SeriesOrigin names the row bucket a series was built from.
type SeriesOrigin string

const (
	OriginNormal  SeriesOrigin = "normal"
	OriginAnomaly SeriesOrigin = "anomaly"
	OriginNone    SeriesOrigin = "none"
)

// ChartPoint is one plotted value. X is the row position in the source dataset so that
// filtered gaps keep their place on the time axis.
type ChartPoint struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
	// Score is set on anomaly points when the row has a score.
	Score *float64 `json:"score,omitempty"`
}

// Series is a renderable sequence of points.
type Series struct {
	Name   string       `json:"name"`
	Metric string       `json:"metric,omitempty"`
	Kind   SeriesKind   `json:"kind"`
	Origin SeriesOrigin `json:"origin"`
	// Axis is 0 for the primary metric and 1 for the secondary metric.
	Axis   int          `json:"axis"`
	Points []ChartPoint `json:"points"`
}

// Projection is the main trend chart derived from a view.
type Projection struct {
	Series      []Series `json:"series"`
	NormalRows  int      `json:"normal_rows"`
	AnomalyRows int      `json:"anomaly_rows"`
	// Fallback is set when anomalous rows were drawn as lines because no normal
	// rows were available to draw.
	Fallback bool `json:"fallback"`
}

// NormalSeries returns the series built from normal rows.
func (p Projection) NormalSeries() []Series { return p.byOrigin(OriginNormal) }

// AnomalySeries returns the series built from anomalous rows.
func (p Projection) AnomalySeries() []Series { return p.byOrigin(OriginAnomaly) }

func (p Projection) byOrigin(o SeriesOrigin) []Series {
	out := make([]Series, 0, 2)
	for _, s := range p.Series {
		if s.Origin == o {
			out = append(out, s)
		}
	}
	return out
}

type projectedRow struct {
	x     int
	y1    float64
	y2    float64
	score *float64
}

// ProjectSeries maps a view and a metric pair into chart series.
//
// Rows missing either selected metric are dropped. Normal rows become one line series
// per metric when mode draws lines; anomalous rows become one scatter series per metric
// when mode draws scatter points. When lines are requested and there is nothing normal
// to draw (no normal rows, or an anomalies-only window in line mode) the anomalous rows
// are drawn as connected lines instead. If nothing can be drawn at all a single empty
// placeholder series is returned so the chart axes still render.
func ProjectSeries(view *FilteredView, primary, secondary string, mode DisplayMode) Projection {
	if mode != DisplayScatter && mode != DisplayBoth {
		mode = DisplayLine
	}

	rows := &view.Rows
	var normal, anomalous []projectedRow
	for i := range view.Indices {
		y1, ok := rows.metricAt(primary, i)
		if !ok {
			continue
		}
		y2, ok := rows.metricAt(secondary, i)
		if !ok {
			continue
		}
		r := projectedRow{x: view.Indices[i], y1: y1, y2: y2}
		if rows.anomalyAt(i) {
			if score, ok := rows.scoreAt(i); ok {
				r.score = &score
			}
			anomalous = append(anomalous, r)
			continue
		}
		normal = append(normal, r)
	}

	p := Projection{NormalRows: len(normal), AnomalyRows: len(anomalous)}

	fallback := len(anomalous) > 0 && mode.lines() &&
		(len(normal) == 0 || (view.Range == RangeAnomalies && mode == DisplayLine))

	switch {
	case fallback:
		p.Fallback = true
		p.Series = append(p.Series, metricPair(anomalous, primary, secondary, SeriesLine, OriginAnomaly, false)...)
	default:
		if mode.lines() && len(normal) > 0 {
			p.Series = append(p.Series, metricPair(normal, primary, secondary, SeriesLine, OriginNormal, false)...)
		}
		if mode.scatter() && len(anomalous) > 0 {
			p.Series = append(p.Series, metricPair(anomalous, primary, secondary, SeriesScatter, OriginAnomaly, true)...)
		}
	}

	if len(p.Series) == 0 {
		p.Series = []Series{{
			Name:   "no data",
			Kind:   SeriesPlaceholder,
			Origin: OriginNone,
			Points: []ChartPoint{},
		}}
	}
	return p
}

func metricPair(rows []projectedRow, primary, secondary string, kind SeriesKind, origin SeriesOrigin, withScore bool) []Series {
	first := Series{Metric: primary, Kind: kind, Origin: origin, Axis: 0, Points: make([]ChartPoint, len(rows))}
	second := Series{Metric: secondary, Kind: kind, Origin: origin, Axis: 1, Points: make([]ChartPoint, len(rows))}
	first.Name = seriesName(primary, origin)
	second.Name = seriesName(secondary, origin)
	for i, r := range rows {
		first.Points[i] = ChartPoint{X: r.x, Y: r.y1}
		second.Points[i] = ChartPoint{X: r.x, Y: r.y2}
		if withScore {
			first.Points[i].Score = r.score
			second.Points[i].Score = r.score
		}
	}
	return []Series{first, second}
}

func seriesName(metric string, origin SeriesOrigin) string {
	if origin == OriginAnomaly {
		return "Anomaly " + metric
	}
	return MetricLabel(metric)
}
