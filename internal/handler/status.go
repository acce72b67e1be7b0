package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// StatusHandler exposes the listener status over HTTP.
type StatusHandler struct {
	source StatusSource
	logger *zap.Logger
}

// NewStatusHandler creates a new StatusHandler instance.
func NewStatusHandler(source StatusSource, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		source: source,
		logger: logger,
	}
}

// RegisterRoutes registers the status routes with the router.
func (h *StatusHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/status", h.GetStatus).Methods(http.MethodGet)
}

// GetStatus handles GET /api/status requests.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.source.Status())
}
