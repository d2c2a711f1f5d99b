package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"rom-stream-go/internal/monitoring"
	"rom-stream-go/internal/pose"
	"rom-stream-go/internal/rom"
	"rom-stream-go/internal/session"
)

// writeJSONError writes {"error": msg} with the given status code.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// writeAnalysisError maps engine errors to HTTP status codes. Bad input is
// a 400; anything else is reported as a failed analysis.
func writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pose.ErrDecode),
		errors.Is(err, rom.ErrInvalidMovement),
		errors.Is(err, session.ErrInvalidSessionID):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		monitoring.Logf("analysis failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Analysis failed: "+err.Error())
	}
}
