package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/usecase"
	"PDUFAScanner/pkg/response"
)

const apiPrefix = "/api/pdufa"

// writeError maps err onto a status and an envelope. Internal failures are
// logged in full and reported with a short message only.
func writeError(w http.ResponseWriter, logger *zap.Logger, action string, err error) {
	var (
		reqErr   *domain.RequestError
		storeErr *domain.PersistenceError
	)
	switch {
	case errors.As(err, &reqErr):
		response.Fail(w, http.StatusBadRequest, reqErr.Message)
	case errors.Is(err, usecase.ErrCycleInProgress):
		response.Fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, usecase.ErrSchedulerStopped):
		response.Fail(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &storeErr):
		logger.Error(action+" failed", zap.Error(err))
		response.Fail(w, http.StatusInternalServerError, "data store unavailable")
	default:
		logger.Error(action+" failed", zap.Error(err))
		response.Fail(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// intParam reads a positive integer query parameter.
func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, domain.NewRequestError("%s must be a positive integer", name)
	}
	return n, nil
}

// dateParam parses a strict YYYY-MM-DD value.
func dateParam(raw string) (domain.Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return domain.Date{}, domain.NewRequestError("date must be formatted as YYYY-MM-DD")
	}
	return domain.DateOf(t), nil
}
