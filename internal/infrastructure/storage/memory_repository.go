package storage

import (
	"context"
	"sync"
	"time"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/ports"
)

// MemoryRepository keeps records, revisions and the alert ledger in process
// memory. Contents are lost on restart.
type MemoryRepository struct {
	mu        sync.RWMutex
	records   map[domain.RecordKey]domain.PDUFARecord
	revisions []domain.Revision
	alerted   map[string]time.Time
	now       func() time.Time
}

var _ ports.Store = (*MemoryRepository)(nil)

// NewMemoryRepository builds an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[domain.RecordKey]domain.PDUFARecord),
		alerted: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Upsert inserts new records and folds updates into existing ones.
func (m *MemoryRepository) Upsert(_ context.Context, records []domain.PDUFARecord) (domain.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result domain.UpsertResult
	now := m.now().UTC()
	for _, incoming := range records {
		key := incoming.Key()
		stored, ok := m.records[key]
		if !ok {
			rec := incoming.Clone()
			if rec.LastUpdated.IsZero() {
				rec.LastUpdated = now
			}
			m.records[key] = rec
			result.Inserted++
			continue
		}

		merged, changed, revised := domain.ApplyUpdate(stored, incoming)
		if !changed {
			result.Unchanged++
			continue
		}
		if revised {
			m.revisions = append(m.revisions, domain.Revision{
				Key:          key,
				Company:      merged.Company,
				Drug:         merged.Drug,
				PreviousDate: stored.PDUFADate,
				NewDate:      merged.PDUFADate,
				RevisedAt:    now,
			})
			result.Revised++
		}
		m.records[key] = merged
		result.Updated++
	}
	return result, nil
}

// QueryAll returns one page of all records ordered by date.
func (m *MemoryRepository) QueryAll(_ context.Context, page, limit int) (domain.Page, error) {
	page, limit = normalizePaging(page, limit)
	return domain.NewPage(m.filter(func(domain.PDUFARecord) bool { return true }), page, limit), nil
}

// QueryUpcoming returns records dated within [from, from+days].
func (m *MemoryRepository) QueryUpcoming(_ context.Context, from domain.Date, days int) ([]domain.PDUFARecord, error) {
	if days < 0 {
		return []domain.PDUFARecord{}, nil
	}
	until := from.AddDays(days)
	return m.filter(func(r domain.PDUFARecord) bool {
		return !r.PDUFADate.Before(from) && !r.PDUFADate.After(until)
	}), nil
}

// QueryByDate returns records dated exactly on date.
func (m *MemoryRepository) QueryByDate(_ context.Context, date domain.Date) ([]domain.PDUFARecord, error) {
	return m.filter(func(r domain.PDUFARecord) bool { return r.PDUFADate.Equal(date) }), nil
}

// QueryByTicker matches the ticker case-insensitively.
func (m *MemoryRepository) QueryByTicker(_ context.Context, ticker string) ([]domain.PDUFARecord, error) {
	return m.filter(func(r domain.PDUFARecord) bool { return matchesTicker(r, ticker) }), nil
}

// QueryByCompany matches a case-insensitive company substring.
func (m *MemoryRepository) QueryByCompany(_ context.Context, company string) ([]domain.PDUFARecord, error) {
	return m.filter(func(r domain.PDUFARecord) bool { return matchesCompany(r, company) }), nil
}

// Search matches a case-insensitive substring of company, drug or ticker.
func (m *MemoryRepository) Search(_ context.Context, text string) ([]domain.PDUFARecord, error) {
	return m.filter(func(r domain.PDUFARecord) bool { return matchesSearch(r, text) }), nil
}

// Stats aggregates the stored records.
func (m *MemoryRepository) Stats(_ context.Context, today domain.Date) (domain.Stats, error) {
	all := m.filter(func(domain.PDUFARecord) bool { return true })
	m.mu.RLock()
	revisions := len(m.revisions)
	m.mu.RUnlock()
	return domain.ComputeStats(all, revisions, today), nil
}

// Revisions lists superseded dates for one (company, drug) pair, or all of
// them when both are empty.
func (m *MemoryRepository) Revisions(_ context.Context, company, drug string) ([]domain.Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := company == "" && drug == ""
	key := domain.RecordKey{Company: domain.NormalizeCompany(company), Drug: domain.NormalizeDrug(drug)}
	out := make([]domain.Revision, 0)
	for _, rev := range m.revisions {
		if all || rev.Key == key {
			out = append(out, rev)
		}
	}
	return out, nil
}

// AlertedAt reports when the event was last alerted.
func (m *MemoryRepository) AlertedAt(_ context.Context, eventKey string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.alerted[eventKey]
	return at, ok, nil
}

// MarkAlerted records a successful alert for the event.
func (m *MemoryRepository) MarkAlerted(_ context.Context, eventKey string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerted[eventKey] = at.UTC()
	return nil
}

// Ping always succeeds.
func (m *MemoryRepository) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryRepository) Close() error {
	return nil
}

func (m *MemoryRepository) filter(keep func(domain.PDUFARecord) bool) []domain.PDUFARecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.PDUFARecord, 0, len(m.records))
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	domain.SortRecords(out)
	return out
}
