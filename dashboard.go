package iotanomaly

import "fmt"

// ViewOptions selects what a dashboard view shows. Zero values select the defaults.
type ViewOptions struct {
	Range     RangeKind
	Primary   string
	Secondary string
	Mode      DisplayMode
	// Limit caps the ranked anomalies considered; 0 ranks every anomaly.
	Limit int
	// Offset and PageSize select the page of ranked anomalies returned.
	Offset   int
	PageSize int
}

// MetricInfo describes a selectable metric.
type MetricInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Unit  string `json:"unit,omitempty"`
}

// DashboardView is everything the dashboard renders for one run and one selection.
type DashboardView struct {
	RunID     string       `json:"run_id,omitempty"`
	Range     RangeKind    `json:"range"`
	Mode      DisplayMode  `json:"mode"`
	Primary   string       `json:"primary"`
	Secondary string       `json:"secondary"`
	Metrics   []MetricInfo `json:"metrics"`

	// ViewPoints is the number of rows in the selected window.
	ViewPoints   int        `json:"view_points"`
	Summary      Summary    `json:"summary"`
	Chart        Projection `json:"chart"`
	Distribution Buckets    `json:"distribution"`
	Scores       Buckets    `json:"scores"`

	// TotalRanked is the number of ranked anomalies before paging.
	TotalRanked int             `json:"total_ranked"`
	Offset      int             `json:"offset"`
	Anomalies   []AnomalyRecord `json:"anomalies"`
	HasMore     bool            `json:"has_more"`
}

// BuildView derives the dashboard for ds. The summary counts the rows of ds itself;
// a run's stored summary should replace it when ds is a sampled chart dataset.
func BuildView(ds *Dataset, opts ViewOptions) (*DashboardView, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: no dataset", ErrInsufficientData)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if opts.Range == "" {
		opts.Range = RangeAll
	}
	if opts.Mode == "" {
		opts.Mode = DisplayLine
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.PageSize <= 0 {
		opts.PageSize = AnomalyPageSize
	}

	primary, secondary, err := ResolveMetricPair(ds, opts.Primary, opts.Secondary)
	if err != nil {
		return nil, err
	}

	view := FilterByRange(ds, opts.Range)
	limit := opts.Limit
	if limit <= 0 {
		limit = view.Len()
	}
	ranked := RankAnomalies(view, primary, secondary, limit)
	page := PageAnomalies(ranked, opts.Offset, opts.PageSize)

	names := ds.MetricNames()
	metrics := make([]MetricInfo, len(names))
	for i, n := range names {
		metrics[i] = MetricInfo{Name: n, Label: MetricLabel(n), Unit: MetricUnit(n)}
	}

	return &DashboardView{
		Range:        view.Range,
		Mode:         opts.Mode,
		Primary:      primary,
		Secondary:    secondary,
		Metrics:      metrics,
		ViewPoints:   view.Len(),
		Summary:      Summarize(ds),
		Chart:        ProjectSeries(view, primary, secondary, opts.Mode),
		Distribution: DistributionHistogram(view, primary, secondary),
		Scores:       ScoreHistogram(view),
		TotalRanked:  len(ranked),
		Offset:       opts.Offset,
		Anomalies:    page,
		HasMore:      opts.Offset+len(page) < len(ranked),
	}, nil
}

// BuildRunView derives the dashboard for a stored run.
func BuildRunView(run *AnalysisRun, opts ViewOptions) (*DashboardView, error) {
	v, err := BuildView(run.Chart, opts)
	if err != nil {
		return nil, err
	}
	v.RunID = run.ID
	v.Summary = run.Summary
	return v, nil
}
