package iotanomaly

import (
	"io"
	"net/http"
)

// setupIngestRoutes configures the Prometheus remote write endpoint and the ingest
// buffer controls.
func setupIngestRoutes(mux *http.ServeMux, s *Server, wrap middlewareWrapper) {
	if s.ingest == nil {
		return
	}

	mux.HandleFunc("POST /prometheus/write", wrap("/prometheus/write", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxUploadBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, err)
			return
		}
		req, err := DecodeRemoteWrite(body)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "bad_data", err.Error())
			return
		}
		if n := s.ingest.Append(req); n > 0 {
			s.hub.Publish(Event{Type: EventIngest, Source: SourceIngest, Rows: s.ingest.Len()})
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.HandleFunc("GET /api/ingest", wrap("/api/ingest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"rows":     s.ingest.Len(),
			"metrics":  s.ingest.Columns(),
			"max_rows": s.cfg.Ingest.MaxRows,
		})
	}))

	mux.HandleFunc("POST /api/ingest/detect", wrap("/api/ingest/detect", func(w http.ResponseWriter, r *http.Request) {
		contamination, err := queryFloat(r, "contamination", 0)
		if err != nil {
			writeError(w, err)
			return
		}
		run, err := s.analyzer.Analyze(r.Context(), SourceIngest, "remote write", s.ingest.Frame(), contamination)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, newAnalysisResponse(run))
	}))

	mux.HandleFunc("DELETE /api/ingest", wrap("/api/ingest", func(w http.ResponseWriter, r *http.Request) {
		s.ingest.Clear()
		w.WriteHeader(http.StatusNoContent)
	}))
}
