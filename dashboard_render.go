package iotanomaly

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderDashboard writes a self-contained HTML page with the trend chart, both
// histograms and the top ranked anomalies of view.
func RenderDashboard(w io.Writer, title string, view *DashboardView) error {
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(
		trendChart(view),
		histogramChart("Distribution", fmt.Sprintf("%s and %s", MetricLabel(view.Primary), MetricLabel(view.Secondary)), view.Distribution, "#5470c6"),
		histogramChart("Anomaly scores", fmt.Sprintf("%d anomalies in window", view.TotalRanked), view.Scores, "#ee6666"),
		topAnomaliesChart(view),
	)
	return page.Render(w)
}

func trendChart(view *DashboardView) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title: "Sensor trend",
			Subtitle: fmt.Sprintf("range=%s mode=%s points=%d anomalies=%d (%.2f%%)",
				view.Range, view.Mode, view.ViewPoints, view.Summary.NumAnomalies, view.Summary.AnomalyPercentage),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "row"}),
		charts.WithYAxisOpts(opts.YAxis{Name: MetricLabel(view.Primary)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.ExtendYAxis(opts.YAxis{Name: MetricLabel(view.Secondary)})

	var scatter *charts.Scatter
	for _, s := range view.Chart.Series {
		switch s.Kind {
		case SeriesScatter:
			if scatter == nil {
				scatter = charts.NewScatter()
			}
			scatter.AddSeries(s.Name, scatterData(s.Points),
				charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8, YAxisIndex: s.Axis}),
				charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ee6666"}),
			)
		default:
			line.AddSeries(s.Name, lineData(s.Points),
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(s.Origin == OriginAnomaly), YAxisIndex: s.Axis}),
			)
		}
	}
	if scatter != nil {
		line.Overlap(scatter)
	}
	return line
}

func lineData(points []ChartPoint) []opts.LineData {
	out := make([]opts.LineData, len(points))
	for i, p := range points {
		out[i] = opts.LineData{Value: []interface{}{p.X, p.Y}}
	}
	return out
}

func scatterData(points []ChartPoint) []opts.ScatterData {
	out := make([]opts.ScatterData, len(points))
	for i, p := range points {
		v := []interface{}{p.X, p.Y}
		if p.Score != nil {
			v = append(v, *p.Score)
		}
		out[i] = opts.ScatterData{Value: v}
	}
	return out
}

func histogramChart(title, subtitle string, b Buckets, color string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	data := make([]opts.BarData, len(b.Counts))
	for i, c := range b.Counts {
		data[i] = opts.BarData{Value: c}
	}
	bar.SetXAxis(b.Labels).AddSeries("count", data,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
	)
	return bar
}

func topAnomaliesChart(view *DashboardView) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Top anomalies",
			Subtitle: fmt.Sprintf("showing %d of %d", len(view.Anomalies), view.TotalRanked),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score", Min: 0, Max: 1}),
	)

	labels := make([]string, len(view.Anomalies))
	data := make([]opts.BarData, len(view.Anomalies))
	for i, a := range view.Anomalies {
		labels[i] = formatTimestamp(a.Time)
		data[i] = opts.BarData{
			Name:  fmt.Sprintf("%s: %.2f, %s: %.2f", view.Primary, a.PrimaryValue, view.Secondary, a.SecondaryValue),
			Value: a.Score,
			ItemStyle: &opts.ItemStyle{
				Color: severityColor(a.Severity),
			},
		}
	}
	bar.SetXAxis(labels).AddSeries("score", data)
	return bar
}

func severityColor(s Severity) string {
	switch s {
	case SeverityCritical:
		return "#c23531"
	case SeverityHigh:
		return "#ee6666"
	case SeverityMedium:
		return "#fac858"
	default:
		return "#91cc75"
	}
}
