package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/infrastructure/cache"
	"PDUFAScanner/internal/infrastructure/storage"
	"PDUFAScanner/internal/ports"
)

var testNow = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu     sync.Mutex
	report domain.FetchReport
	gate   chan struct{}
	calls  int
}

func (f *fakeSource) FetchAll(_ context.Context, _ time.Time) domain.FetchReport {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	report := f.report
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return report
}

func (f *fakeSource) setReport(report domain.FetchReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.report = report
}

type fakeNotifier struct {
	name string

	mu    sync.Mutex
	errs  []error
	sent  []domain.Alert
	calls int
}

func (n *fakeNotifier) Name() string { return n.name }

func (n *fakeNotifier) Notify(_ context.Context, alert domain.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if len(n.errs) > 0 {
		err := n.errs[0]
		n.errs = n.errs[1:]
		if err != nil {
			return err
		}
	}
	n.sent = append(n.sent, alert)
	return nil
}

func (n *fakeNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// failingStore rejects every upsert.
type failingStore struct {
	*storage.MemoryRepository
}

func (failingStore) Upsert(context.Context, []domain.PDUFARecord) (domain.UpsertResult, error) {
	return domain.UpsertResult{}, &domain.PersistenceError{Op: "upsert", Err: context.DeadlineExceeded}
}

func feedItem(source, company, drug, date string) domain.FeedItem {
	return domain.FeedItem{
		SourceID:  source,
		FetchedAt: testNow,
		Company:   company,
		Drug:      drug,
		Date:      date,
	}
}

type harness struct {
	clock    *testclock.Clock
	store    *storage.MemoryRepository
	cache    *cache.QueryCache
	source   *fakeSource
	alerts   *AlertDispatcher
	pipeline *Pipeline
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func newHarness(t *testing.T, store ports.PDUFARepository, notifiers ...ports.Notifier) *harness {
	t.Helper()
	mem := storage.NewMemoryRepository()
	if store == nil {
		store = mem
	}
	h := &harness{
		clock:  testclock.NewClock(testNow),
		store:  mem,
		cache:  cache.New(time.Minute, 0),
		source: &fakeSource{},
	}
	h.alerts = NewAlertDispatcher(AlertDeps{
		Store:         store,
		Ledger:        mem,
		Notifiers:     notifiers,
		Policy:        fastPolicy(),
		LookaheadDays: 7,
	})
	h.pipeline = NewPipeline(PipelineDeps{
		Source: h.source,
		Store:  store,
		Cache:  h.cache,
		Alerts: h.alerts,
		Clock:  h.clock,
	})
	return h
}
