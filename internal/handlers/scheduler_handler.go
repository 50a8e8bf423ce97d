package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/usecase"
	"PDUFAScanner/pkg/response"
)

// SchedulerControl is the administrative surface of the scheduler service.
type SchedulerControl interface {
	Status() domain.SchedulerState
	RunManualCheck(ctx context.Context) (domain.CycleResult, error)
	SendTestAlert(ctx context.Context) (domain.Alert, error)
	Validate(ctx context.Context) domain.ValidationReport
}

// CacheClearer drops cached query results.
type CacheClearer interface {
	ClearCache() int
}

var (
	_ SchedulerControl = (*usecase.Scheduler)(nil)
	_ CacheClearer     = (*usecase.QueryService)(nil)
)

// SchedulerHandler serves the administrative endpoints. They carry no
// authentication.
type SchedulerHandler struct {
	scheduler SchedulerControl
	cache     CacheClearer
	logger    *zap.Logger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(scheduler SchedulerControl, cache CacheClearer) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler, cache: cache, logger: zap.NewNop()}
}

// RegisterRoutes registers the routes for this handler
func (h *SchedulerHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	if logger != nil {
		h.logger = logger.Named("admin")
	}
	router.HandleFunc(apiPrefix+"/scheduler/status", h.status).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/scheduler/check", h.check).Methods(http.MethodPost)
	router.HandleFunc(apiPrefix+"/scheduler/test-alert", h.testAlert).Methods(http.MethodPost)
	router.HandleFunc(apiPrefix+"/scheduler/validate", h.validate).Methods(http.MethodPost)
	router.HandleFunc(apiPrefix+"/cache/clear", h.clearCache).Methods(http.MethodPost)
}

func (h *SchedulerHandler) status(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, h.scheduler.Status())
}

func (h *SchedulerHandler) check(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.RunManualCheck(r.Context())
	if err != nil {
		writeError(w, h.logger, "run manual check", err)
		return
	}
	env := response.Envelope{Success: result.Status != domain.CycleFailed, Data: result}
	if !env.Success {
		env.Message = result.Message
	}
	response.Write(w, http.StatusOK, env)
}

func (h *SchedulerHandler) testAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.scheduler.SendTestAlert(r.Context())
	if err != nil {
		writeError(w, h.logger, "send test alert", err)
		return
	}
	response.Write(w, http.StatusOK, response.Envelope{
		Success: true,
		Data:    alert,
		Message: "test alert sent: " + alert.Headline(),
	})
}

func (h *SchedulerHandler) validate(w http.ResponseWriter, r *http.Request) {
	report := h.scheduler.Validate(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	response.Write(w, status, response.Envelope{Success: report.Healthy, Data: report})
}

func (h *SchedulerHandler) clearCache(w http.ResponseWriter, _ *http.Request) {
	cleared := h.cache.ClearCache()
	h.logger.Info("query cache cleared", zap.Int("entries", cleared))
	response.Write(w, http.StatusOK, response.Envelope{
		Success: true,
		Data:    map[string]int{"cleared": cleared},
		Message: "cache cleared",
	})
}
