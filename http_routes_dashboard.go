package iotanomaly

import (
	"bytes"
	"net/http"
)

// setupDashboardRoutes configures the HTML dashboard
func setupDashboardRoutes(mux *http.ServeMux, s *Server, wrap middlewareWrapper) {
	mux.HandleFunc("GET /dashboard", wrap("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		runs, err := s.store.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if len(runs) == 0 {
			jsonError(w, http.StatusNotFound, "not_found", "no analysis runs yet")
			return
		}
		target := "/dashboard/" + runs[0].ID
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusFound)
	}))

	mux.HandleFunc("GET /dashboard/{id}", wrap("/dashboard/{id}", func(w http.ResponseWriter, r *http.Request) {
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

		title := "IoT anomalies"
		if run.Name != "" {
			title += ": " + run.Name
		}
		var buf bytes.Buffer
		if err := RenderDashboard(&buf, title, view); err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}))
}
