package ports

import (
	"context"
	"time"

	"PDUFAScanner/internal/domain"
)

// RecordSource pulls raw decision candidates from every upstream provider.
// Per-source failures are reported in the result, never returned as error.
type RecordSource interface {
	FetchAll(ctx context.Context, now time.Time) domain.FetchReport
}

// PDUFARepository persists canonical records.
type PDUFARepository interface {
	Upsert(ctx context.Context, records []domain.PDUFARecord) (domain.UpsertResult, error)
	QueryAll(ctx context.Context, page, limit int) (domain.Page, error)
	QueryUpcoming(ctx context.Context, from domain.Date, days int) ([]domain.PDUFARecord, error)
	QueryByDate(ctx context.Context, date domain.Date) ([]domain.PDUFARecord, error)
	QueryByTicker(ctx context.Context, ticker string) ([]domain.PDUFARecord, error)
	QueryByCompany(ctx context.Context, company string) ([]domain.PDUFARecord, error)
	Search(ctx context.Context, text string) ([]domain.PDUFARecord, error)
	Stats(ctx context.Context, today domain.Date) (domain.Stats, error)
	Revisions(ctx context.Context, company, drug string) ([]domain.Revision, error)
	Ping(ctx context.Context) error
}

// AlertLedger remembers which decision events were already alerted.
type AlertLedger interface {
	AlertedAt(ctx context.Context, eventKey string) (time.Time, bool, error)
	MarkAlerted(ctx context.Context, eventKey string, at time.Time) error
}

// Store is a repository that also keeps the alert ledger.
type Store interface {
	PDUFARepository
	AlertLedger
	Close() error
}

// Cache is the short-lived, non-durable layer in front of the repository.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	// Generation changes on every Clear.
	Generation() uint64
	// SetIfGeneration stores value only while the cache is still at gen, so
	// a load that raced a Clear cannot repopulate stale data.
	SetIfGeneration(gen uint64, key string, value any, ttl time.Duration) bool
	Clear()
	Len() int
}

// Notifier delivers one formatted alert to an outbound channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert domain.Alert) error
}

// Scheduler controls when cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
	NextRun() time.Time
}
