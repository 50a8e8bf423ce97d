package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juju/clock"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/ports"
	"PDUFAScanner/internal/telemetry"
)

// Limits enforced on query input.
const (
	DefaultPage         = 1
	DefaultLimit        = 50
	MaxLimit            = 500
	DefaultUpcomingDays = 30
	MaxUpcomingDays     = 365
)

// QueryDeps wires the query service.
type QueryDeps struct {
	Store    ports.PDUFARepository
	Cache    ports.Cache
	TTL      time.Duration
	Location *time.Location
	Clock    clock.Clock
	Metrics  *telemetry.Telemetry
}

// QueryService answers read requests, reading through the cache. Every
// method reports whether the payload came from the cache.
type QueryService struct {
	store   ports.PDUFARepository
	cache   ports.Cache
	ttl     time.Duration
	loc     *time.Location
	clock   clock.Clock
	metrics *telemetry.Telemetry
}

// NewQueryService builds the service; a nil cache disables caching.
func NewQueryService(deps QueryDeps) *QueryService {
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &QueryService{
		store:   deps.Store,
		cache:   deps.Cache,
		ttl:     deps.TTL,
		loc:     deps.Location,
		clock:   deps.Clock,
		metrics: deps.Metrics,
	}
}

// All lists records page by page.
func (q *QueryService) All(ctx context.Context, page, limit int) (domain.Page, bool, error) {
	if page < 1 {
		return domain.Page{}, false, domain.NewRequestError("page must be a positive integer")
	}
	if limit < 1 || limit > MaxLimit {
		return domain.Page{}, false, domain.NewRequestError("limit must be between 1 and %d", MaxLimit)
	}
	key := fmt.Sprintf("all:%d:%d", page, limit)
	return readThrough(ctx, q, key, func() (domain.Page, error) {
		return q.store.QueryAll(ctx, page, limit)
	})
}

// Upcoming lists decisions within the next days, today included.
func (q *QueryService) Upcoming(ctx context.Context, days int) ([]domain.PDUFARecord, bool, error) {
	if days < 1 || days > MaxUpcomingDays {
		return nil, false, domain.NewRequestError("days must be between 1 and %d", MaxUpcomingDays)
	}
	today := q.today()
	key := fmt.Sprintf("upcoming:%d:%s", days, today)
	return readThrough(ctx, q, key, func() ([]domain.PDUFARecord, error) {
		return q.store.QueryUpcoming(ctx, today, days)
	})
}

// ByDate lists decisions on one day.
func (q *QueryService) ByDate(ctx context.Context, date domain.Date) ([]domain.PDUFARecord, bool, error) {
	return readThrough(ctx, q, "date:"+date.String(), func() ([]domain.PDUFARecord, error) {
		return q.store.QueryByDate(ctx, date)
	})
}

// ByTicker lists decisions for a ticker.
func (q *QueryService) ByTicker(ctx context.Context, ticker string) ([]domain.PDUFARecord, bool, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, false, domain.NewRequestError("ticker is required")
	}
	return readThrough(ctx, q, "ticker:"+ticker, func() ([]domain.PDUFARecord, error) {
		return q.store.QueryByTicker(ctx, ticker)
	})
}

// ByCompany lists decisions for companies whose name contains company.
func (q *QueryService) ByCompany(ctx context.Context, company string) ([]domain.PDUFARecord, bool, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, false, domain.NewRequestError("company is required")
	}
	return readThrough(ctx, q, "company:"+strings.ToLower(company), func() ([]domain.PDUFARecord, error) {
		return q.store.QueryByCompany(ctx, company)
	})
}

// Search matches company, drug or ticker.
func (q *QueryService) Search(ctx context.Context, text string) ([]domain.PDUFARecord, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false, domain.NewRequestError("search query 'q' is required")
	}
	return readThrough(ctx, q, "search:"+strings.ToLower(text), func() ([]domain.PDUFARecord, error) {
		return q.store.Search(ctx, text)
	})
}

// Stats aggregates the store relative to today.
func (q *QueryService) Stats(ctx context.Context) (domain.Stats, bool, error) {
	today := q.today()
	return readThrough(ctx, q, "stats:"+today.String(), func() (domain.Stats, error) {
		return q.store.Stats(ctx, today)
	})
}

// Revisions lists superseded decision dates, optionally narrowed to one
// company and drug.
func (q *QueryService) Revisions(ctx context.Context, company, drug string) ([]domain.Revision, bool, error) {
	company, drug = strings.TrimSpace(company), strings.TrimSpace(drug)
	if (company == "") != (drug == "") {
		return nil, false, domain.NewRequestError("company and drug must be given together")
	}
	key := "revisions:" + domain.NormalizeCompany(company) + "|" + domain.NormalizeDrug(drug)
	return readThrough(ctx, q, key, func() ([]domain.Revision, error) {
		return q.store.Revisions(ctx, company, drug)
	})
}

// ClearCache drops every cached query and returns how many were dropped.
func (q *QueryService) ClearCache() int {
	if q.cache == nil {
		return 0
	}
	n := q.cache.Len()
	q.cache.Clear()
	return n
}

func (q *QueryService) today() domain.Date {
	return domain.DateIn(q.clock.Now(), q.loc)
}

func readThrough[T any](ctx context.Context, q *QueryService, key string, load func() (T, error)) (T, bool, error) {
	var gen uint64
	if q.cache != nil {
		gen = q.cache.Generation()
		if v, ok := q.cache.Get(key); ok {
			if typed, ok := v.(T); ok {
				q.metrics.RecordCacheHit(ctx)
				return typed, true, nil
			}
		}
		q.metrics.RecordCacheMiss(ctx)
	}

	value, err := load()
	if err != nil {
		var zero T
		return zero, false, err
	}
	if q.cache != nil {
		q.cache.SetIfGeneration(gen, key, value, q.ttl)
	}
	return value, false, nil
}
