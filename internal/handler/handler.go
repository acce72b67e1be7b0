// Package handler provides HTTP request handlers for the REST API.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/localbackend/internal/model"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
}

// StatusSource reports the listener status and streams its changes.
type StatusSource interface {
	Status() model.Status
	// Subscribe returns a channel of status changes and a function that
	// cancels the subscription and closes the channel.
	Subscribe() (<-chan model.Status, func())
}

// Response messages.
const (
	msgNotFound     = "Not Found"
	msgItemNotFound = "Item not found"
	msgNameRequired = "Name is required"
	msgBodyRequired = "Request body is required"
	msgInvalidJSON  = "Invalid JSON body"
	msgBodyTooLarge = "Request body too large"
	msgInvalidID    = "Invalid item ID"
	msgInternal     = "Internal server error"
	msgItemDeleted  = "Item deleted successfully"
)

// NotFound returns a handler answering every request with 404 and a JSON error.
func NotFound(logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, logger, http.StatusNotFound, model.ErrorResponse{Error: msgNotFound})
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	writeJSON(w, logger, status, model.ErrorResponse{Error: message})
}
