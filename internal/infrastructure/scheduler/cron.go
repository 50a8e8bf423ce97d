package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"PDUFAScanner/internal/ports"
)

// CronScheduler fires a job at the times described by a standard five-field
// cron expression, evaluated in a fixed timezone.
type CronScheduler struct {
	expr       string
	schedule   cron.Schedule
	loc        *time.Location
	clock      clock.Clock
	runOnStart bool
	logger     *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
	next time.Time
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// Options tune a CronScheduler. Zero values fall back to UTC and the wall clock.
type Options struct {
	Location   *time.Location
	Clock      clock.Clock
	RunOnStart bool
	Logger     *zap.Logger
}

// NewCronScheduler parses expr and builds an idle scheduler.
func NewCronScheduler(expr string, opts Options) (*CronScheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &CronScheduler{
		expr:       expr,
		schedule:   schedule,
		loc:        opts.Location,
		clock:      opts.Clock,
		runOnStart: opts.RunOnStart,
		logger:     opts.Logger.Named("cron"),
	}, nil
}

// Expression returns the configured cron expression.
func (c *CronScheduler) Expression() string {
	return c.expr
}

// Start launches the timing loop. job runs on the loop goroutine, so it
// should hand long work off and return quickly. Starting twice is a no-op.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return fmt.Errorf("cron scheduler: nil job")
	}

	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done
	c.mu.Unlock()

	go c.loop(ctx, job, stop, done)
	return nil
}

func (c *CronScheduler) loop(ctx context.Context, job func(time.Time), stop, done chan struct{}) {
	defer close(done)
	defer c.setNext(time.Time{})

	if c.runOnStart {
		job(c.clock.Now())
	}

	for {
		now := c.clock.Now()
		next := c.schedule.Next(now.In(c.loc))
		c.setNext(next)
		c.logger.Debug("next run scheduled", zap.Time("at", next))

		timer := c.clock.NewTimer(next.Sub(now))
		select {
		case fired := <-timer.Chan():
			job(fired)
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// Stop halts future runs and waits for the loop to exit, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron scheduler stop: %w", ctx.Err())
	}
}

// NextRun returns the next planned fire time, or zero when not running.
func (c *CronScheduler) NextRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

func (c *CronScheduler) setNext(t time.Time) {
	c.mu.Lock()
	c.next = t
	c.mu.Unlock()
}
