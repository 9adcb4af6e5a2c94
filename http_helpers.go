package iotanomaly

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

// writeJSON encodes data as JSON and writes it to the response.
// Logs any encoding errors instead of silently ignoring them.
func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

// writeJSONStatus writes a JSON response with a specific status code.
func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "err", err)
	}
}

// jsonError writes a JSON-formatted error response.
func jsonError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":    "error",
		"errorType": errorType,
		"error":     message,
	}); err != nil {
		slog.Error("failed to encode error response", "err", err)
	}
}

// writeError maps err to a status code and error type and writes it as JSON.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("HTTP error", "status", status, "err", err)
	} else {
		slog.Warn("HTTP error", "status", status, "err", err)
	}
	jsonError(w, status, errorType, err.Error())
}

func errorStatus(err error) (int, string) {
	var csvErr *CSVError
	var maxBytes *http.MaxBytesError
	var paramErr *paramError
	switch {
	case errors.Is(err, ErrRunNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrTooManyRows), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.As(err, &csvErr),
		errors.As(err, &paramErr),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidDisplayMode),
		errors.Is(err, ErrInvalidContamination),
		errors.Is(err, ErrEmptyCSV),
		errors.Is(err, ErrNoNumericColumns),
		errors.Is(err, ErrUnknownMetric),
		errors.Is(err, ErrInsufficientData),
		errors.Is(err, ErrLengthMismatch):
		return http.StatusBadRequest, "bad_data"
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

// queryInt parses an integer query parameter, returning def when it is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &paramError{name: name, value: s}
	}
	return v, nil
}

// queryFloat parses a float parameter from the query string or form, returning def
// when it is absent.
func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	s := r.FormValue(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &paramError{name: name, value: s}
	}
	return v, nil
}

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " parameter: " + strconv.Quote(e.value)
}
