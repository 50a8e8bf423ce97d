package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// MetricsHandler exposes the Prometheus scrape endpoint.
type MetricsHandler struct {
	handler http.Handler
}

// NewMetricsHandler wraps the telemetry exporter handler.
func NewMetricsHandler(handler http.Handler) *MetricsHandler {
	return &MetricsHandler{handler: handler}
}

// RegisterRoutes registers the routes for this handler
func (h *MetricsHandler) RegisterRoutes(router *mux.Router, _ *zap.Logger) {
	router.Handle("/metrics", h.handler).Methods(http.MethodGet)
}
