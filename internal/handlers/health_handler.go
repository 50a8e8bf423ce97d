package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"PDUFAScanner/pkg/response"
)

// HealthHandler reports liveness only; it never touches dependencies.
type HealthHandler struct {
	startedAt time.Time
	version   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{startedAt: time.Now(), version: version}
}

// RegisterRoutes registers the routes for this handler
func (h *HealthHandler) RegisterRoutes(router *mux.Router, _ *zap.Logger) {
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
}

func (h *HealthHandler) health(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}
