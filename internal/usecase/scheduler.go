package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"PDUFAScanner/internal/config"
	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/ports"
	"PDUFAScanner/internal/scanner"
)

// ErrCycleInProgress rejects a manual trigger while another cycle runs.
var ErrCycleInProgress = errors.New("a scrape cycle is already in progress")

// ErrSchedulerStopped rejects a cycle requested after Stop.
var ErrSchedulerStopped = errors.New("scheduler is stopped")

const validateCacheKey = "__validate__"

// SchedulerDeps wires the scheduler service.
type SchedulerDeps struct {
	Driver         ports.Scheduler
	CronExpression string
	Pipeline       *Pipeline
	Alerts         *AlertDispatcher
	Store          ports.PDUFARepository
	Cache          ports.Cache
	Registry       *scanner.Registry
	Sites          []config.SiteConfig
	CycleTimeout   time.Duration
	Clock          clock.Clock
	Logger         *zap.Logger
}

// Scheduler owns the cycle lifecycle: timed runs through the driver, manual
// runs from the API and the state both expose. At most one cycle is in
// flight at a time.
type Scheduler struct {
	driver       ports.Scheduler
	cronExpr     string
	pipeline     *Pipeline
	alerts       *AlertDispatcher
	store        ports.PDUFARepository
	cache        ports.Cache
	registry     *scanner.Registry
	sites        []config.SiteConfig
	cycleTimeout time.Duration
	clock        clock.Clock
	logger       *zap.Logger

	inFlight atomic.Bool

	mu         sync.RWMutex
	running    bool
	stopped    bool
	cycleDone  chan struct{}
	lastRunAt  *time.Time
	lastResult *domain.CycleResult
	totalRuns  int
	failedRuns int
}

// NewScheduler returns the service; it does nothing until Start.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Scheduler{
		driver:       deps.Driver,
		cronExpr:     deps.CronExpression,
		pipeline:     deps.Pipeline,
		alerts:       deps.Alerts,
		store:        deps.Store,
		cache:        deps.Cache,
		registry:     deps.Registry,
		sites:        deps.Sites,
		cycleTimeout: deps.CycleTimeout,
		clock:        deps.Clock,
		logger:       deps.Logger.Named("scheduler"),
	}
}

// Start registers the cycle with the driver. Starting twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return fmt.Errorf("scheduler is not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if err := s.driver.Start(ctx, s.onTick); err != nil {
		return fmt.Errorf("start driver: %w", err)
	}
	s.running = true
	s.stopped = false
	s.logger.Info("scheduler started", zap.String("cron", s.cronExpr))
	return nil
}

// Stop rejects new cycles, scheduled or manual, and waits for an in-flight
// cycle to finish, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	var errs []error
	if s.driver != nil {
		if err := s.driver.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.running = false
	done := s.cycleDone
	s.mu.Unlock()

	if done != nil {
		s.logger.Info("waiting for in-flight cycle")
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for in-flight cycle: %w", ctx.Err()))
		}
	}
	s.logger.Info("scheduler stopped")
	return errors.Join(errs...)
}

// Status snapshots the scheduler state.
func (s *Scheduler) Status() domain.SchedulerState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := domain.SchedulerState{
		Running:        s.running,
		CycleInFlight:  s.inFlight.Load(),
		CronExpression: s.cronExpr,
		TotalRuns:      s.totalRuns,
		FailedRuns:     s.failedRuns,
	}
	if s.lastRunAt != nil {
		at := *s.lastRunAt
		state.LastRunAt = &at
	}
	if s.lastResult != nil {
		last := *s.lastResult
		state.LastRunResult = &last
	}
	if s.running && s.driver != nil {
		if next := s.driver.NextRun(); !next.IsZero() {
			state.NextRunAt = &next
		}
	}
	return state
}

// RunManualCheck runs a cycle now and waits for its result. If ctx ends
// first the cycle keeps running in the background.
func (s *Scheduler) RunManualCheck(ctx context.Context) (domain.CycleResult, error) {
	done, err := s.begin()
	if err != nil {
		return domain.CycleResult{}, err
	}

	results := make(chan domain.CycleResult, 1)
	go func() {
		defer s.finish(done)
		results <- s.execute(domain.TriggerManual)
	}()

	select {
	case result := <-results:
		return result, nil
	case <-ctx.Done():
		return domain.CycleResult{}, ctx.Err()
	}
}

// SendTestAlert pushes a test alert through every channel.
func (s *Scheduler) SendTestAlert(ctx context.Context) (domain.Alert, error) {
	if s.alerts == nil {
		return domain.Alert{}, fmt.Errorf("alerts are not configured")
	}
	return s.alerts.SendTestAlert(ctx, s.clock.Now())
}

// Validate runs a self-check of every subsystem.
func (s *Scheduler) Validate(ctx context.Context) domain.ValidationReport {
	report := domain.ValidationReport{Healthy: true, Checks: []domain.CheckResult{}, CheckedAt: s.clock.Now().UTC()}

	if s.store == nil {
		report.Add("store", errors.New("store is not configured"))
	} else {
		report.Add("store", s.store.Ping(ctx))
	}

	report.Add("cache", s.checkCache())

	if s.alerts == nil || len(s.alerts.Channels()) == 0 {
		report.Add("alerts", errors.New("no alert channels configured"))
	} else {
		report.Add("alerts", nil)
	}

	for _, site := range s.sites {
		if site.Disabled {
			continue
		}
		var err error
		if s.registry == nil {
			err = errors.New("scanner registry is not configured")
		} else if _, err = s.registry.Resolve(site.Scanner); err != nil {
			err = fmt.Errorf("%w (registered: %s)", err, strings.Join(s.registry.Names(), ", "))
		}
		report.Add("source:"+site.Name, err)
	}

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if running {
		report.Add("scheduler", nil)
	} else {
		report.Add("scheduler", errors.New("scheduler is not running"))
	}
	return report
}

func (s *Scheduler) checkCache() error {
	if s.cache == nil {
		return errors.New("cache is not configured")
	}
	s.cache.Set(validateCacheKey, true, time.Second)
	if _, ok := s.cache.Get(validateCacheKey); !ok {
		return errors.New("cache round trip failed")
	}
	return nil
}

// onTick is the driver job. It must return quickly, so the cycle runs on its
// own goroutine; a tick that lands on a running cycle is dropped.
func (s *Scheduler) onTick(at time.Time) {
	done, err := s.begin()
	if err != nil {
		s.logger.Warn("scheduled run skipped", zap.Time("tick", at), zap.Error(err))
		return
	}
	go func() {
		defer s.finish(done)
		s.execute(domain.TriggerScheduled)
	}()
}

func (s *Scheduler) begin() (chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrSchedulerStopped
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	s.cycleDone = make(chan struct{})
	return s.cycleDone, nil
}

func (s *Scheduler) finish(done chan struct{}) {
	s.mu.Lock()
	s.cycleDone = nil
	s.inFlight.Store(false)
	s.mu.Unlock()
	close(done)
}

// execute runs one cycle detached from the caller's context.
func (s *Scheduler) execute(trigger domain.Trigger) domain.CycleResult {
	ctx := context.Background()
	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}

	result := s.pipeline.RunCycle(ctx, trigger)

	s.mu.Lock()
	defer s.mu.Unlock()
	at := result.StartedAt
	s.lastRunAt = &at
	s.lastResult = &result
	s.totalRuns++
	if result.Status == domain.CycleFailed {
		s.failedRuns++
	}
	return result
}
