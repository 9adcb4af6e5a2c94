package iotanomaly

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// analysisResponse is returned by the upload and sample endpoints.
type analysisResponse struct {
	Success           bool     `json:"success"`
	Message           string   `json:"message"`
	RunID             string   `json:"run_id"`
	TotalPoints       int      `json:"total_points"`
	NumAnomalies      int      `json:"num_anomalies"`
	AnomalyPercentage float64  `json:"anomaly_percentage"`
	Sampled           bool     `json:"sampled"`
	ChartData         *Dataset `json:"chart_data"`
}

func newAnalysisResponse(run *AnalysisRun) analysisResponse {
	return analysisResponse{
		Success: true,
		Message: fmt.Sprintf("Analyzed %d data points and found %d anomalies",
			run.Summary.TotalPoints, run.Summary.NumAnomalies),
		RunID:             run.ID,
		TotalPoints:       run.Summary.TotalPoints,
		NumAnomalies:      run.Summary.NumAnomalies,
		AnomalyPercentage: run.Summary.AnomalyPercentage,
		Sampled:           run.Sampled,
		ChartData:         run.Chart,
	}
}

// setupRunRoutes configures analysis and run endpoints
func setupRunRoutes(mux *http.ServeMux, s *Server, wrap middlewareWrapper) {
	health := func(w http.ResponseWriter, r *http.Request) {
		runs, err := s.store.Count(r.Context())
		status := "ok"
		if err != nil {
			status = "degraded"
		}
		writeJSON(w, map[string]any{
			"status":        status,
			"model":         s.cfg.Detection.Model,
			"contamination": s.cfg.Detection.Contamination,
			"runs":          runs,
			"uptime":        time.Since(s.started).Round(time.Second).String(),
			"time":          time.Now().UTC(),
		})
	}
	mux.HandleFunc("/health", wrap("/health", health))
	mux.HandleFunc("/api/health", wrap("/api/health", health))

	mux.HandleFunc("POST /api/upload_csv", wrap("/api/upload_csv", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxUploadBytes)
		file, header, err := r.FormFile("csv_file")
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			jsonError(w, http.StatusBadRequest, "bad_data", "no file uploaded")
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		defer func() { _ = file.Close() }()

		if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
			jsonError(w, http.StatusBadRequest, "bad_data", "file must be a .csv file")
			return
		}
		contamination, err := queryFloat(r, "contamination", 0)
		if err != nil {
			writeError(w, err)
			return
		}

		run, err := s.analyzer.AnalyzeCSV(r.Context(), header.Filename, file, contamination)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, newAnalysisResponse(run))
	}))

	mux.HandleFunc("GET /api/sample_data", wrap("/api/sample_data", func(w http.ResponseWriter, r *http.Request) {
		points, err := queryInt(r, "points", s.cfg.Detection.SamplePoints)
		if err != nil {
			writeError(w, err)
			return
		}
		contamination, err := queryFloat(r, "contamination", 0)
		if err != nil {
			writeError(w, err)
			return
		}
		run, err := s.analyzer.AnalyzeSample(r.Context(), points, contamination)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, newAnalysisResponse(run))
	}))

	mux.HandleFunc("GET /api/runs", wrap("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := s.store.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"runs": runs})
	}))

	mux.HandleFunc("GET /api/runs/{id}", wrap("/api/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		run, err := s.store.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, run)
	}))

	mux.HandleFunc("DELETE /api/runs/{id}", wrap("/api/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := s.analyzer.DeleteRun(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.HandleFunc("GET /api/runs/{id}/view", wrap("/api/runs/{id}/view", func(w http.ResponseWriter, r *http.Request) {
		run, err := s.store.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		opts, err := s.viewOptions(r)
		if err != nil {
			writeError(w, err)
			return
		}
		view, err := BuildRunView(run, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, view)
	}))

	mux.HandleFunc("GET /api/runs/{id}/anomalies/{index}", wrap("/api/runs/{id}/anomalies/{index}", func(w http.ResponseWriter, r *http.Request) {
		run, err := s.store.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		index, err := strconv.Atoi(r.PathValue("index"))
		if err != nil {
			writeError(w, &paramError{name: "index", value: r.PathValue("index")})
			return
		}
		q := r.URL.Query()
		primary, secondary, err := ResolveMetricPair(run.Chart, q.Get("primary"), q.Get("secondary"))
		if err != nil {
			writeError(w, err)
			return
		}
		detail, err := DetailFor(run.Chart, index, primary, secondary, s.cfg.Dashboard.ContextRows)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, detail)
	}))

	mux.HandleFunc("GET /api/runs/{id}/export", wrap("/api/runs/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		run, err := s.store.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.ID+".csv"))
		if err := WriteCSV(w, run.Chart); err != nil {
			s.logger.Error("csv export failed", "run", run.ID, "err", err)
		}
	}))
}

// viewOptions parses the dashboard selection from the query string.
func (s *Server) viewOptions(r *http.Request) (ViewOptions, error) {
	q := r.URL.Query()
	rng, err := ParseRangeKind(q.Get("range"))
	if err != nil {
		return ViewOptions{}, err
	}
	mode, err := ParseDisplayMode(q.Get("mode"))
	if err != nil {
		return ViewOptions{}, err
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return ViewOptions{}, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return ViewOptions{}, err
	}
	return ViewOptions{
		Range:     rng,
		Primary:   q.Get("primary"),
		Secondary: q.Get("secondary"),
		Mode:      mode,
		Limit:     limit,
		Offset:    offset,
		PageSize:  s.cfg.Dashboard.AnomalyLimit,
	}, nil
}
