package parser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"PDUFAScanner/internal/config"
	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/ports"
	"PDUFAScanner/internal/scanner"
	"PDUFAScanner/internal/telemetry"
)

const defaultFetchConcurrency = 4

// StrategySource implements RecordSource via registered scanner strategies.
type StrategySource struct {
	registry    *scanner.Registry
	sites       []config.SiteConfig
	concurrency int
	siteTimeout time.Duration
	metrics     *telemetry.Telemetry
	logger      *zap.Logger
}

var _ ports.RecordSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, opts config.FetchConfig, metrics *telemetry.Telemetry, log *zap.Logger) *StrategySource {
	if log == nil {
		log = zap.NewNop()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultFetchConcurrency
	}
	return &StrategySource{
		registry:    reg,
		sites:       sites,
		concurrency: concurrency,
		siteTimeout: opts.SiteTimeout,
		metrics:     metrics,
		logger:      log,
	}
}

// Sites returns the configured sites.
func (s *StrategySource) Sites() []config.SiteConfig {
	return s.sites
}

// FetchAll scans every enabled site concurrently. A failing site is recorded
// in the report and never stops the others.
func (s *StrategySource) FetchAll(ctx context.Context, now time.Time) domain.FetchReport {
	var (
		mu     sync.Mutex
		report domain.FetchReport
		g      errgroup.Group
	)
	g.SetLimit(s.concurrency)

	s.logger.Debug("fetch all", zap.Int("sites", len(s.sites)))

	for _, site := range s.sites {
		if site.Disabled {
			continue
		}
		report.Sources++

		g.Go(func() error {
			started := time.Now()
			records, err := s.scanSite(ctx, site, now)
			s.metrics.RecordFetch(ctx, site.Name, len(records), err, time.Since(started))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("site failed", zap.String("site", site.Name), zap.Error(err))
				report.Failures = append(report.Failures, &domain.FetchError{Source: site.Name, Err: err})
				return nil
			}
			s.logger.Debug("site produced records", zap.String("site", site.Name), zap.Int("count", len(records)))
			report.Records = append(report.Records, records...)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Debug("strategy source done",
		zap.Int("total_records", len(report.Records)),
		zap.Int("failed_sites", len(report.Failures)))
	return report
}

func (s *StrategySource) scanSite(ctx context.Context, site config.SiteConfig, now time.Time) (records []domain.RawRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scanner panic: %v", r)
		}
	}()

	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}
	strategy, err := s.registry.Resolve(site.Scanner)
	if err != nil {
		return nil, err
	}

	if s.siteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.siteTimeout)
		defer cancel()
	}

	return strategy.Scan(ctx, scanner.Request{
		SiteName: site.Name,
		URL:      site.URL,
		Options:  site.Options,
		Now:      now,
	})
}
