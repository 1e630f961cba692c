package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/support-console/internal/engine"
	"github.com/capitalize-ai/support-console/internal/upstream"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeEngineError maps engine and upstream errors onto the console API's
// error contract, surfacing the best human-readable reason available.
func writeEngineError(w http.ResponseWriter, err error) {
	var httpErr *upstream.HTTPError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, engine.ErrDeletionInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrDeletionTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &httpErr):
		writeError(w, http.StatusBadGateway, httpErr.Reason)
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
