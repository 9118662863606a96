package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// GenericErrorResponse is the body of every non-2xx JSON response.
type GenericErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write response", "error", err, "status_code", statusCode)
	}
}

func jsonError(w http.ResponseWriter, logger *slog.Logger, message string, statusCode int) {
	logger.Warn("API Error Response", "status_code", statusCode, "message", message)
	writeJSON(w, logger, statusCode, GenericErrorResponse{Error: message})
}
