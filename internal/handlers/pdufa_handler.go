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

// RecordQueries is the read side consumed by PDUFAHandler.
type RecordQueries interface {
	All(ctx context.Context, page, limit int) (domain.Page, bool, error)
	Upcoming(ctx context.Context, days int) ([]domain.PDUFARecord, bool, error)
	ByDate(ctx context.Context, date domain.Date) ([]domain.PDUFARecord, bool, error)
	ByTicker(ctx context.Context, ticker string) ([]domain.PDUFARecord, bool, error)
	ByCompany(ctx context.Context, company string) ([]domain.PDUFARecord, bool, error)
	Search(ctx context.Context, text string) ([]domain.PDUFARecord, bool, error)
	Stats(ctx context.Context) (domain.Stats, bool, error)
	Revisions(ctx context.Context, company, drug string) ([]domain.Revision, bool, error)
}

var _ RecordQueries = (*usecase.QueryService)(nil)

// PDUFAHandler serves the record listing endpoints.
type PDUFAHandler struct {
	queries RecordQueries
	logger  *zap.Logger
}

// NewPDUFAHandler creates a new record handler
func NewPDUFAHandler(queries RecordQueries) *PDUFAHandler {
	return &PDUFAHandler{queries: queries, logger: zap.NewNop()}
}

// RegisterRoutes registers the routes for this handler
func (h *PDUFAHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	if logger != nil {
		h.logger = logger.Named("pdufa")
	}
	router.HandleFunc(apiPrefix, h.list).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/upcoming", h.upcoming).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/date/{date}", h.byDate).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/ticker/{ticker}", h.byTicker).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/company/{company}", h.byCompany).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/search", h.search).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/stats", h.stats).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/revisions", h.revisions).Methods(http.MethodGet)
}

func (h *PDUFAHandler) list(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", usecase.DefaultPage)
	if err != nil {
		writeError(w, h.logger, "list records", err)
		return
	}
	limit, err := intParam(r, "limit", usecase.DefaultLimit)
	if err != nil {
		writeError(w, h.logger, "list records", err)
		return
	}
	result, cached, err := h.queries.All(r.Context(), page, limit)
	if err != nil {
		writeError(w, h.logger, "list records", err)
		return
	}
	response.Cached(w, result, cached)
}

func (h *PDUFAHandler) upcoming(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", usecase.DefaultUpcomingDays)
	if err != nil {
		writeError(w, h.logger, "list upcoming decisions", err)
		return
	}
	records, cached, err := h.queries.Upcoming(r.Context(), days)
	h.writeRecords(w, "list upcoming decisions", records, cached, err)
}

func (h *PDUFAHandler) byDate(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(mux.Vars(r)["date"])
	if err != nil {
		writeError(w, h.logger, "list decisions by date", err)
		return
	}
	records, cached, err := h.queries.ByDate(r.Context(), date)
	h.writeRecords(w, "list decisions by date", records, cached, err)
}

func (h *PDUFAHandler) byTicker(w http.ResponseWriter, r *http.Request) {
	records, cached, err := h.queries.ByTicker(r.Context(), mux.Vars(r)["ticker"])
	h.writeRecords(w, "list decisions by ticker", records, cached, err)
}

func (h *PDUFAHandler) byCompany(w http.ResponseWriter, r *http.Request) {
	records, cached, err := h.queries.ByCompany(r.Context(), mux.Vars(r)["company"])
	h.writeRecords(w, "list decisions by company", records, cached, err)
}

func (h *PDUFAHandler) search(w http.ResponseWriter, r *http.Request) {
	records, cached, err := h.queries.Search(r.Context(), r.URL.Query().Get("q"))
	h.writeRecords(w, "search decisions", records, cached, err)
}

func (h *PDUFAHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, cached, err := h.queries.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, "compute stats", err)
		return
	}
	response.Cached(w, stats, cached)
}

func (h *PDUFAHandler) revisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	revisions, cached, err := h.queries.Revisions(r.Context(), q.Get("company"), q.Get("drug"))
	if err != nil {
		writeError(w, h.logger, "list revisions", err)
		return
	}
	if revisions == nil {
		revisions = []domain.Revision{}
	}
	response.Cached(w, revisions, cached)
}

func (h *PDUFAHandler) writeRecords(w http.ResponseWriter, action string, records []domain.PDUFARecord, cached bool, err error) {
	if err != nil {
		writeError(w, h.logger, action, err)
		return
	}
	if records == nil {
		records = []domain.PDUFARecord{}
	}
	response.Cached(w, records, cached)
}
