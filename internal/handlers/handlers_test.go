package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/infrastructure/cache"
	"PDUFAScanner/internal/infrastructure/storage"
	"PDUFAScanner/internal/usecase"
)

var testNow = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func record(ticker, company, drug string, date domain.Date) domain.PDUFARecord {
	return domain.PDUFARecord{
		Ticker:      ticker,
		Company:     company,
		Drug:        drug,
		PDUFADate:   date,
		Sources:     []string{"biopharmcatalyst"},
		LastUpdated: testNow,
	}
}

func setupQueries(t *testing.T) (*usecase.QueryService, *storage.MemoryRepository) {
	t.Helper()
	store := storage.NewMemoryRepository()
	_, err := store.Upsert(context.Background(), []domain.PDUFARecord{
		record("ACME", "Acme Bio", "AC-1", domain.NewDate(2025, 3, 12)),
		record("", "Beta Pharma", "Betamab", domain.NewDate(2025, 6, 1)),
	})
	require.NoError(t, err)
	svc := usecase.NewQueryService(usecase.QueryDeps{
		Store: store,
		Cache: cache.New(time.Minute, 0),
		TTL:   time.Minute,
		Clock: testclock.NewClock(testNow),
	})
	return svc, store
}

func serve(r *mux.Router, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func newRecordRouter(t *testing.T) (*mux.Router, *usecase.QueryService, *storage.MemoryRepository) {
	t.Helper()
	svc, store := setupQueries(t)
	r := mux.NewRouter()
	NewPDUFAHandler(svc).RegisterRoutes(r, zap.NewNop())
	NewSchedulerHandler(&fakeControl{}, svc).RegisterRoutes(r, zap.NewNop())
	return r, svc, store
}

func TestPDUFAHandler_List(t *testing.T) {
	r, _, _ := newRecordRouter(t)

	w, body := serve(r, http.MethodGet, "/api/pdufa?page=1&limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, false, body["cached"])
	require.NotEmpty(t, body["timestamp"])

	page := body["data"].(map[string]any)
	require.EqualValues(t, 2, page["total"])
	require.EqualValues(t, 2, page["totalPages"])
	require.Len(t, page["records"], 1)

	_, body = serve(r, http.MethodGet, "/api/pdufa?page=1&limit=1")
	require.Equal(t, true, body["cached"])
}

func TestPDUFAHandler_Lookups(t *testing.T) {
	r, _, _ := newRecordRouter(t)

	cases := []struct {
		target string
		drug   string
	}{
		{"/api/pdufa/upcoming?days=30", "AC-1"},
		{"/api/pdufa/date/2025-06-01", "Betamab"},
		{"/api/pdufa/ticker/acme", "AC-1"},
		{"/api/pdufa/company/beta", "Betamab"},
		{"/api/pdufa/search?q=mab", "Betamab"},
	}
	for _, tc := range cases {
		w, body := serve(r, http.MethodGet, tc.target)
		require.Equal(t, http.StatusOK, w.Code, tc.target)
		records := body["data"].([]any)
		require.Len(t, records, 1, tc.target)
		require.Equal(t, tc.drug, records[0].(map[string]any)["drug"], tc.target)
	}

	w, body := serve(r, http.MethodGet, "/api/pdufa/ticker/NONE")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []any{}, body["data"])

	w, body = serve(r, http.MethodGet, "/api/pdufa/stats")
	require.Equal(t, http.StatusOK, w.Code)
	stats := body["data"].(map[string]any)
	require.EqualValues(t, 2, stats["total"])
	require.EqualValues(t, 1, stats["nextThirtyDays"])
}

func TestPDUFAHandler_RejectsBadInput(t *testing.T) {
	r, _, _ := newRecordRouter(t)

	cases := map[string]string{
		"/api/pdufa?page=0":              "page must be a positive integer",
		"/api/pdufa?limit=abc":           "limit must be a positive integer",
		"/api/pdufa?limit=501":           "limit must be between 1 and 500",
		"/api/pdufa/upcoming?days=400":   "days must be between 1 and 365",
		"/api/pdufa/date/2025-13-01":     "date must be formatted as YYYY-MM-DD",
		"/api/pdufa/date/March-12-2025":  "date must be formatted as YYYY-MM-DD",
		"/api/pdufa/search":              "search query 'q' is required",
		"/api/pdufa/search?q=%20%20":     "search query 'q' is required",
		"/api/pdufa/revisions?company=x": "company and drug must be given together",
	}
	for target, message := range cases {
		w, body := serve(r, http.MethodGet, target)
		require.Equal(t, http.StatusBadRequest, w.Code, target)
		require.Equal(t, false, body["success"], target)
		require.Equal(t, message, body["message"], target)
		require.NotContains(t, body, "data", target)
	}
}

func TestPDUFAHandler_CacheClearForcesFreshRead(t *testing.T) {
	r, _, store := newRecordRouter(t)

	_, body := serve(r, http.MethodGet, "/api/pdufa")
	require.Equal(t, false, body["cached"])

	_, err := store.Upsert(context.Background(), []domain.PDUFARecord{
		record("GAM", "Gamma Labs", "G-7", domain.NewDate(2025, 4, 1)),
	})
	require.NoError(t, err)

	_, body = serve(r, http.MethodGet, "/api/pdufa")
	require.Equal(t, true, body["cached"])
	require.EqualValues(t, 2, body["data"].(map[string]any)["total"])

	w, body := serve(r, http.MethodPost, "/api/pdufa/cache/clear")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, body["data"].(map[string]any)["cleared"])

	_, body = serve(r, http.MethodGet, "/api/pdufa")
	require.Equal(t, false, body["cached"])
	require.EqualValues(t, 3, body["data"].(map[string]any)["total"])
}

func TestPDUFAHandler_Revisions(t *testing.T) {
	r, _, store := newRecordRouter(t)

	_, err := store.Upsert(context.Background(), []domain.PDUFARecord{
		record("ACME", "Acme Bio", "AC-1", domain.NewDate(2025, 3, 28)),
	})
	require.NoError(t, err)

	w, body := serve(r, http.MethodGet, "/api/pdufa/revisions?company=acme%20bio&drug=ac-1")
	require.Equal(t, http.StatusOK, w.Code)
	revisions := body["data"].([]any)
	require.Len(t, revisions, 1)
	rev := revisions[0].(map[string]any)
	require.Equal(t, "2025-03-12", rev["previousDate"])
	require.Equal(t, "2025-03-28", rev["newDate"])
}

type brokenQueries struct{ RecordQueries }

func (brokenQueries) All(context.Context, int, int) (domain.Page, bool, error) {
	return domain.Page{}, false, &domain.PersistenceError{Op: "query all", Err: errors.New("dial tcp 10.0.0.5:5432: connection refused")}
}

func TestPDUFAHandler_InternalErrorHidesDetails(t *testing.T) {
	r := mux.NewRouter()
	NewPDUFAHandler(brokenQueries{}).RegisterRoutes(r, zap.NewNop())

	w, body := serve(r, http.MethodGet, "/api/pdufa")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "data store unavailable", body["message"])
	require.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestWriteErrorHidesUnknownFailures(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, zap.NewNop(), "list records", errors.New("template: nil pointer"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), `"message":"failed to list records"`)
}

type fakeControl struct {
	checkErr  error
	result    domain.CycleResult
	alertErr  error
	unhealthy bool
}

func (f *fakeControl) Status() domain.SchedulerState {
	return domain.SchedulerState{Running: true, CronExpression: "0 9 * * *", TotalRuns: 3}
}

func (f *fakeControl) RunManualCheck(context.Context) (domain.CycleResult, error) {
	return f.result, f.checkErr
}

func (f *fakeControl) SendTestAlert(context.Context) (domain.Alert, error) {
	if f.alertErr != nil {
		return domain.Alert{}, f.alertErr
	}
	return domain.Alert{
		Record:    record("TEST", "Sample Therapeutics", "TEST-001", domain.NewDate(2025, 3, 17)),
		DaysUntil: 7,
		Test:      true,
	}, nil
}

func (f *fakeControl) Validate(context.Context) domain.ValidationReport {
	report := domain.ValidationReport{Healthy: true}
	if f.unhealthy {
		report.Add("store", errors.New("store is not configured"))
	} else {
		report.Add("store", nil)
	}
	return report
}

func newAdminRouter(control *fakeControl) *mux.Router {
	r := mux.NewRouter()
	NewSchedulerHandler(control, usecase.NewQueryService(usecase.QueryDeps{})).RegisterRoutes(r, zap.NewNop())
	return r
}

func TestSchedulerHandler_Status(t *testing.T) {
	w, body := serve(newAdminRouter(&fakeControl{}), http.MethodGet, "/api/pdufa/scheduler/status")
	require.Equal(t, http.StatusOK, w.Code)
	state := body["data"].(map[string]any)
	require.Equal(t, true, state["running"])
	require.EqualValues(t, 3, state["totalRuns"])
}

func TestSchedulerHandler_Check(t *testing.T) {
	control := &fakeControl{result: domain.CycleResult{Status: domain.CyclePartial, Trigger: domain.TriggerManual}}
	r := newAdminRouter(control)

	w, body := serve(r, http.MethodPost, "/api/pdufa/scheduler/check")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "partial", body["data"].(map[string]any)["status"])

	control.result = domain.CycleResult{Status: domain.CycleFailed, Message: "all 3 sources failed"}
	_, body = serve(r, http.MethodPost, "/api/pdufa/scheduler/check")
	require.Equal(t, false, body["success"])
	require.Equal(t, "all 3 sources failed", body["message"])

	control.checkErr = usecase.ErrCycleInProgress
	w, body = serve(r, http.MethodPost, "/api/pdufa/scheduler/check")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, usecase.ErrCycleInProgress.Error(), body["message"])

	control.checkErr = usecase.ErrSchedulerStopped
	w, body = serve(r, http.MethodPost, "/api/pdufa/scheduler/check")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, usecase.ErrSchedulerStopped.Error(), body["message"])

	w, _ = serve(r, http.MethodGet, "/api/pdufa/scheduler/check")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSchedulerHandler_TestAlert(t *testing.T) {
	control := &fakeControl{}
	r := newAdminRouter(control)

	w, body := serve(r, http.MethodPost, "/api/pdufa/scheduler/test-alert")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "test alert sent: [TEST] PDUFA in 7 days: TEST-001 ($TEST)", body["message"])

	control.alertErr = &domain.DeliveryError{Channel: "discord", Attempts: 4, Err: errors.New("503")}
	w, body = serve(r, http.MethodPost, "/api/pdufa/scheduler/test-alert")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "failed to send test alert", body["message"])
}

func TestSchedulerHandler_Validate(t *testing.T) {
	w, body := serve(newAdminRouter(&fakeControl{}), http.MethodPost, "/api/pdufa/scheduler/validate")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["success"])

	w, body = serve(newAdminRouter(&fakeControl{unhealthy: true}), http.MethodPost, "/api/pdufa/scheduler/validate")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, false, body["success"])
	checks := body["data"].(map[string]any)["checks"].([]any)
	require.Equal(t, "store is not configured", checks[0].(map[string]any)["message"])
}

func TestHealthHandler(t *testing.T) {
	r := mux.NewRouter()
	NewHealthHandler("test").RegisterRoutes(r, zap.NewNop())

	w, body := serve(r, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", body["data"].(map[string]any)["status"])
}
