package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"PDUFAScanner/internal/config"
	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/scanner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDriver captures the job instead of running a real timer.
type fakeDriver struct {
	mu      sync.Mutex
	job     func(time.Time)
	started int
	stopped int
	next    time.Time
}

func (d *fakeDriver) Start(_ context.Context, job func(time.Time)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.job = job
	d.started++
	return nil
}

func (d *fakeDriver) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
	return nil
}

func (d *fakeDriver) NextRun() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.next
}

func (d *fakeDriver) tick(at time.Time) {
	d.mu.Lock()
	job := d.job
	d.mu.Unlock()
	job(at)
}

type validateScanner struct{ name string }

func (s validateScanner) Name() string { return s.name }

func (validateScanner) Scan(context.Context, scanner.Request) ([]domain.RawRecord, error) {
	return nil, nil
}

func newTestScheduler(h *harness, driver *fakeDriver) *Scheduler {
	return NewScheduler(SchedulerDeps{
		Driver:         driver,
		CronExpression: "0 9 * * *",
		Pipeline:       h.pipeline,
		Alerts:         h.alerts,
		Store:          h.store,
		Cache:          h.cache,
		CycleTimeout:   time.Minute,
		Clock:          h.clock,
	})
}

func gatedHarness(t *testing.T) (*harness, chan struct{}) {
	t.Helper()
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.source.gate = gate
	h.source.setReport(domain.FetchReport{
		Sources: 1,
		Records: []domain.RawRecord{feedItem("a", "Acme", "AC-1", "2025-05-01")},
	})
	return h, gate
}

func TestManualCheckRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	h, gate := gatedHarness(t)
	driver := &fakeDriver{}
	s := newTestScheduler(h, driver)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	type outcome struct {
		result domain.CycleResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := s.RunManualCheck(ctx)
		first <- outcome{res, err}
	}()
	require.Eventually(t, func() bool { return s.Status().CycleInFlight }, time.Second, 5*time.Millisecond)

	_, err := s.RunManualCheck(ctx)
	require.ErrorIs(t, err, ErrCycleInProgress)

	// A tick during the cycle is dropped.
	driver.tick(testNow)

	close(gate)
	got := <-first
	require.NoError(t, got.err)
	require.Equal(t, domain.CycleSuccess, got.result.Status)
	require.Equal(t, domain.TriggerManual, got.result.Trigger)
	require.Equal(t, 1, got.result.Upsert.Inserted)

	require.NoError(t, s.Stop(ctx))
	state := s.Status()
	require.False(t, state.CycleInFlight)
	require.Equal(t, 1, state.TotalRuns)
	h.source.mu.Lock()
	require.Equal(t, 1, h.source.calls)
	h.source.mu.Unlock()
}

func TestScheduledTickRunsCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.source.setReport(domain.FetchReport{
		Sources: 1,
		Records: []domain.RawRecord{feedItem("a", "Acme", "AC-1", "2025-05-01")},
	})
	driver := &fakeDriver{next: testNow.Add(time.Hour)}
	s := newTestScheduler(h, driver)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))
	require.Equal(t, 1, driver.started)

	driver.tick(testNow)
	require.Eventually(t, func() bool { return s.Status().TotalRuns == 1 }, time.Second, 5*time.Millisecond)

	state := s.Status()
	require.True(t, state.Running)
	require.Equal(t, "0 9 * * *", state.CronExpression)
	require.NotNil(t, state.NextRunAt)
	require.True(t, testNow.Add(time.Hour).Equal(*state.NextRunAt))
	require.NotNil(t, state.LastRunResult)
	require.Equal(t, domain.TriggerScheduled, state.LastRunResult.Trigger)

	require.NoError(t, s.Stop(ctx))
	require.False(t, s.Status().Running)
	require.Nil(t, s.Status().NextRunAt)
}

func TestStopWaitsForInFlightCycle(t *testing.T) {
	t.Parallel()

	h, gate := gatedHarness(t)
	driver := &fakeDriver{}
	s := newTestScheduler(h, driver)
	require.NoError(t, s.Start(context.Background()))

	driver.tick(testNow)
	require.Eventually(t, func() bool { return s.Status().CycleInFlight }, time.Second, 5*time.Millisecond)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Stop(short), context.DeadlineExceeded)

	close(gate)
	require.NoError(t, s.Stop(context.Background()))
	state := s.Status()
	require.False(t, state.CycleInFlight)
	require.Equal(t, 1, state.TotalRuns)
}

func TestStopRejectsLaterCycles(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.source.setReport(domain.FetchReport{
		Sources: 1,
		Records: []domain.RawRecord{feedItem("a", "Acme", "AC-1", "2025-05-01")},
	})
	driver := &fakeDriver{}
	s := newTestScheduler(h, driver)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Stop(ctx))

	_, err := s.RunManualCheck(ctx)
	require.ErrorIs(t, err, ErrSchedulerStopped)

	driver.tick(testNow)
	require.False(t, s.Status().CycleInFlight)
	require.Zero(t, s.Status().TotalRuns)

	h.source.mu.Lock()
	require.Zero(t, h.source.calls)
	h.source.mu.Unlock()
	page, err := h.store.QueryAll(ctx, 1, 50)
	require.NoError(t, err)
	require.Empty(t, page.Records)
}

func TestStatusCountsFailedRuns(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	s := newTestScheduler(h, &fakeDriver{})

	res, err := s.RunManualCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.CycleFailed, res.Status)

	state := s.Status()
	require.Equal(t, 1, state.TotalRuns)
	require.Equal(t, 1, state.FailedRuns)
	require.NotNil(t, state.LastRunAt)
}

func TestValidateReportsEachSubsystem(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, &fakeNotifier{name: "discord"})
	registry := scanner.NewRegistry()
	registry.Register(validateScanner{name: "calendar"})

	s := NewScheduler(SchedulerDeps{
		Driver:   &fakeDriver{},
		Pipeline: h.pipeline,
		Alerts:   h.alerts,
		Store:    h.store,
		Cache:    h.cache,
		Registry: registry,
		Sites: []config.SiteConfig{
			{Name: "calendar-site", Scanner: "calendar"},
			{Name: "feed-site", Scanner: "feed"},
			{Name: "retired", Scanner: "feed", Disabled: true},
		},
		Clock: h.clock,
	})

	report := s.Validate(context.Background())
	require.False(t, report.Healthy)

	checks := map[string]bool{}
	for _, c := range report.Checks {
		checks[c.Name] = c.OK
	}
	require.Equal(t, map[string]bool{
		"store":                true,
		"cache":                true,
		"alerts":               true,
		"source:calendar-site": true,
		"source:feed-site":     false,
		"scheduler":            false,
	}, checks)

	for _, c := range report.Checks {
		if c.Name == "source:feed-site" {
			require.Equal(t, "scanner feed is not registered (registered: calendar)", c.Message)
		}
	}

	require.NoError(t, s.Start(context.Background()))
	registry.Register(validateScanner{name: "feed"})
	require.True(t, s.Validate(context.Background()).Healthy)
	require.NoError(t, s.Stop(context.Background()))
}

func TestSchedulerSendTestAlertRequiresChannels(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	s := newTestScheduler(h, &fakeDriver{})
	_, err := s.SendTestAlert(context.Background())
	require.Error(t, err)
}
