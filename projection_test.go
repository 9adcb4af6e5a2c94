package iotanomaly

import (
	"errors"
	"math"
	"testing"
)

func TestParseDisplayMode(t *testing.T) {
	for in, want := range map[string]DisplayMode{"": DisplayLine, "LINE": DisplayLine, "scatter": DisplayScatter, " both": DisplayBoth} {
		got, err := ParseDisplayMode(in)
		if err != nil || got != want {
			t.Errorf("ParseDisplayMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseDisplayMode("bars"); !errors.Is(err, ErrInvalidDisplayMode) {
		t.Errorf("expected ErrInvalidDisplayMode, got %v", err)
	}
}

func TestProjectSeries_Modes(t *testing.T) {
	ds := fixtureDataset(10, 3, 6)
	view := FilterByRange(ds, RangeAll)

	tests := []struct {
		mode        DisplayMode
		normal      int
		anomaly     int
		anomalyKind SeriesKind
	}{
		{DisplayLine, 2, 0, ""},
		{DisplayScatter, 0, 2, SeriesScatter},
		{DisplayBoth, 2, 2, SeriesScatter},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p := ProjectSeries(view, "temperature", "humidity", tt.mode)
			if got := len(p.NormalSeries()); got != tt.normal {
				t.Errorf("normal series = %d, want %d", got, tt.normal)
			}
			anomalies := p.AnomalySeries()
			if len(anomalies) != tt.anomaly {
				t.Fatalf("anomaly series = %d, want %d", len(anomalies), tt.anomaly)
			}
			for _, s := range anomalies {
				if s.Kind != tt.anomalyKind {
					t.Errorf("anomaly series kind = %s", s.Kind)
				}
				if len(s.Points) != 2 || s.Points[0].X != 3 || s.Points[1].X != 6 {
					t.Errorf("unexpected anomaly points %+v", s.Points)
				}
				if s.Points[0].Score == nil {
					t.Error("scatter points should carry scores")
				}
			}
			if p.NormalRows != 8 || p.AnomalyRows != 2 || p.Fallback {
				t.Errorf("unexpected counts %+v", p)
			}
		})
	}
}

func TestProjectSeries_OriginsRecoverRowCounts(t *testing.T) {
	ds := fixtureDataset(120, 5, 25, 40, 41, 77, 110)
	for _, kind := range []RangeKind{RangeAll, RangeLast100, RangeLast50} {
		view := FilterByRange(ds, kind)
		wantAnomalies := 0
		for _, a := range view.Rows.IsAnomaly {
			if a {
				wantAnomalies++
			}
		}
		wantNormal := view.Len() - wantAnomalies

		p := ProjectSeries(view, "temperature", "humidity", DisplayBoth)
		points := map[SeriesOrigin]map[int]bool{OriginNormal: {}, OriginAnomaly: {}}
		for _, s := range p.Series {
			for _, pt := range s.Points {
				points[s.Origin][pt.X] = true
			}
		}
		if got := len(points[OriginNormal]); got != wantNormal {
			t.Errorf("%s: normal rows = %d, want %d", kind, got, wantNormal)
		}
		if got := len(points[OriginAnomaly]); got != wantAnomalies {
			t.Errorf("%s: anomaly rows = %d, want %d", kind, got, wantAnomalies)
		}
	}
}

func TestProjectSeries_AxesAndNames(t *testing.T) {
	p := ProjectSeries(FilterByRange(fixtureDataset(4), RangeAll), "temperature", "humidity", DisplayLine)
	if len(p.Series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(p.Series))
	}
	if p.Series[0].Axis != 0 || p.Series[1].Axis != 1 {
		t.Error("primary should use axis 0 and secondary axis 1")
	}
	if p.Series[0].Name != "temperature (°C)" || p.Series[1].Name != "humidity (%)" {
		t.Errorf("unexpected names %q %q", p.Series[0].Name, p.Series[1].Name)
	}
}

func TestProjectSeries_DropsIncompleteRows(t *testing.T) {
	ds := fixtureDataset(5)
	ds.Metrics["humidity"][2] = math.NaN()

	p := ProjectSeries(FilterByRange(ds, RangeAll), "temperature", "humidity", DisplayLine)
	if p.NormalRows != 4 {
		t.Errorf("expected 4 plotted rows, got %d", p.NormalRows)
	}
	for _, pt := range p.Series[0].Points {
		if pt.X == 2 {
			t.Error("row with a missing metric should be dropped from both series")
		}
	}
}

func TestProjectSeries_Fallback(t *testing.T) {
	ds := fixtureDataset(6, 1, 4)

	// An anomalies-only window in line mode draws the anomalies as lines.
	p := ProjectSeries(FilterByRange(ds, RangeAnomalies), "temperature", "humidity", DisplayLine)
	if !p.Fallback {
		t.Fatal("expected fallback")
	}
	if len(p.Series) != 2 || p.Series[0].Kind != SeriesLine || p.Series[0].Origin != OriginAnomaly {
		t.Errorf("unexpected fallback series %+v", p.Series)
	}

	// Scatter mode on the same window keeps scatter points.
	scatter := ProjectSeries(FilterByRange(ds, RangeAnomalies), "temperature", "humidity", DisplayScatter)
	if scatter.Fallback || scatter.Series[0].Kind != SeriesScatter {
		t.Error("scatter mode should not fall back")
	}

	all := fixtureDataset(3, 0, 1, 2)
	p = ProjectSeries(FilterByRange(all, RangeAll), "temperature", "humidity", DisplayLine)
	if !p.Fallback {
		t.Error("expected fallback when no normal rows exist")
	}
}

func TestProjectSeries_Placeholder(t *testing.T) {
	p := ProjectSeries(FilterByRange(NewDataset(), RangeAll), "temperature", "humidity", DisplayLine)
	if len(p.Series) != 1 || p.Series[0].Kind != SeriesPlaceholder {
		t.Fatalf("expected a single placeholder, got %+v", p.Series)
	}
	if p.Series[0].Points == nil {
		t.Error("placeholder points should be non-nil")
	}

	// Scatter mode with no anomalies has nothing to draw.
	p = ProjectSeries(FilterByRange(fixtureDataset(5), RangeAll), "temperature", "humidity", DisplayScatter)
	if len(p.Series) != 1 || p.Series[0].Origin != OriginNone {
		t.Errorf("expected placeholder for scatter without anomalies, got %+v", p.Series)
	}
}
