package iotanomaly

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Run sources.
const (
	SourceUpload = "upload"
	SourceSample = "sample"
	SourceIngest = "ingest"
)

// AnalysisRun is one stored detection result.
type AnalysisRun struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Source        string    `json:"source"`
	Name          string    `json:"name,omitempty"`
	Contamination float64   `json:"contamination"`
	Detection     Detection `json:"detection"`
	Summary       Summary   `json:"summary"`
	// Chart is the dataset kept for display, capped at the configured point budget.
	Chart *Dataset `json:"chart_data"`
	// Sampled is set when Chart holds fewer rows than were analyzed.
	Sampled bool `json:"sampled"`
}

// Info returns the list summary of r.
func (r *AnalysisRun) Info() RunInfo {
	return RunInfo{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt,
		Source:        r.Source,
		Name:          r.Name,
		Contamination: r.Contamination,
		Summary:       r.Summary,
		ChartPoints:   r.Chart.Len(),
	}
}

// RunInfo is the list entry of a run, without its chart data.
type RunInfo struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Source        string    `json:"source"`
	Name          string    `json:"name,omitempty"`
	Contamination float64   `json:"contamination"`
	Summary       Summary   `json:"summary"`
	ChartPoints   int       `json:"chart_points"`
}

// Analyzer turns frames into stored runs. Store, Hub and Metrics are optional.
type Analyzer struct {
	Detection DetectionConfig
	Dashboard DashboardConfig

	Store   *RunStore
	Hub     *EventHub
	Metrics *Metrics
	Logger  *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewAnalyzer returns an analyzer using cfg's detection and dashboard settings.
func NewAnalyzer(cfg Config, store *RunStore, hub *EventHub, metrics *Metrics, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		Detection: cfg.Detection,
		Dashboard: cfg.Dashboard,
		Store:     store,
		Hub:       hub,
		Metrics:   metrics,
		Logger:    logger,
	}
}

func (a *Analyzer) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Analyze runs detection over frame and stores the result. A contamination of zero
// selects the configured default.
func (a *Analyzer) Analyze(ctx context.Context, source, name string, frame *Frame, contamination float64) (*AnalysisRun, error) {
	if contamination == 0 {
		contamination = a.Detection.Contamination
	}

	start := time.Now()
	full, det, err := DetectFrame(ctx, frame, a.Detection, contamination)
	if err != nil {
		return nil, err
	}
	took := time.Since(start)

	chart, sampled := SampleForChart(full, a.Dashboard.MaxChartPoints)
	run := &AnalysisRun{
		ID:            uuid.NewString(),
		CreatedAt:     a.now().UTC(),
		Source:        source,
		Name:          name,
		Contamination: contamination,
		Detection:     det,
		Summary:       Summarize(full),
		Chart:         chart,
		Sampled:       sampled,
	}

	if a.Store != nil {
		if err := a.Store.Save(ctx, run); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}

	a.Metrics.observeRun(source, run.Summary.TotalPoints, run.Summary.NumAnomalies, took)
	summary := run.Summary
	a.Hub.Publish(Event{Type: EventRunCreated, RunID: run.ID, Source: source, Summary: &summary})
	a.Logger.Info("analysis run created",
		"run", run.ID,
		"source", source,
		"rows", run.Summary.TotalPoints,
		"anomalies", run.Summary.NumAnomalies,
		"chart_points", chart.Len(),
		"duration", took)
	return run, nil
}

// AnalyzeCSV decodes r and analyzes it.
func (a *Analyzer) AnalyzeCSV(ctx context.Context, name string, r io.Reader, contamination float64) (*AnalysisRun, error) {
	frame, err := ReadCSV(r, CSVOptions{MaxRows: a.Detection.MaxRows, Now: a.now})
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, SourceUpload, name, frame, contamination)
}

// AnalyzeSample generates n rows of sample data and analyzes them. A non-positive n
// selects the configured sample size.
func (a *Analyzer) AnalyzeSample(ctx context.Context, n int, contamination float64) (*AnalysisRun, error) {
	if n <= 0 {
		n = a.Detection.SamplePoints
	}
	if a.Detection.MaxRows > 0 && n > a.Detection.MaxRows {
		return nil, fmt.Errorf("%w: %d sample rows exceeds the limit of %d", ErrTooManyRows, n, a.Detection.MaxRows)
	}
	return a.Analyze(ctx, SourceSample, "sample", SampleFrame(n, a.now()), contamination)
}

// DeleteRun removes a stored run and announces it.
func (a *Analyzer) DeleteRun(ctx context.Context, id string) error {
	if a.Store == nil {
		return ErrRunNotFound
	}
	if err := a.Store.Delete(ctx, id); err != nil {
		return err
	}
	a.Metrics.observeRunDeleted()
	a.Hub.Publish(Event{Type: EventRunDeleted, RunID: id})
	a.Logger.Info("analysis run deleted", "run", id)
	return nil
}
