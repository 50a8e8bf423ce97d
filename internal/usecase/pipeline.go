package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/normalize"
	"PDUFAScanner/internal/ports"
	"PDUFAScanner/internal/telemetry"
)

// PipelineDeps wires all driven adapters into the scrape cycle.
type PipelineDeps struct {
	Source     ports.RecordSource
	Normalizer *normalize.Normalizer
	Store      ports.PDUFARepository
	Cache      ports.Cache
	Alerts     *AlertDispatcher
	Clock      clock.Clock
	Metrics    *telemetry.Telemetry
	Logger     *zap.Logger
}

// Pipeline runs fetch, normalize, upsert, cache clear and alert evaluation in
// that order.
type Pipeline struct {
	source     ports.RecordSource
	normalizer *normalize.Normalizer
	store      ports.PDUFARepository
	cache      ports.Cache
	alerts     *AlertDispatcher
	clock      clock.Clock
	metrics    *telemetry.Telemetry
	logger     *zap.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.NewNormalizer(deps.Logger)
	}
	return &Pipeline{
		source:     deps.Source,
		normalizer: deps.Normalizer,
		store:      deps.Store,
		cache:      deps.Cache,
		alerts:     deps.Alerts,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		logger:     deps.Logger.Named("pipeline"),
	}
}

// RunCycle executes one cycle. Problems are reported in the result: a cycle
// where every source failed, nothing valid survived normalization or the
// store rejected the batch is failed; one where only some sources failed is
// partial.
func (p *Pipeline) RunCycle(ctx context.Context, trigger domain.Trigger) (result domain.CycleResult) {
	result = domain.CycleResult{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    domain.CycleSuccess,
		StartedAt: p.clock.Now().UTC(),
	}
	log := p.logger.With(zap.String("cycle", result.ID), zap.String("trigger", string(trigger)))
	log.Info("cycle started")

	defer func() {
		result.FinishedAt = p.clock.Now().UTC()
		elapsed := result.FinishedAt.Sub(result.StartedAt)
		result.Duration = elapsed.Round(time.Millisecond).String()
		p.metrics.RecordCycle(ctx, string(trigger), string(result.Status), elapsed)
	}()

	if err := p.run(ctx, &result, log); err != nil {
		result.Status = domain.CycleFailed
		result.Message = err.Error()
		log.Error("cycle failed", zap.Error(err))
		return result
	}

	log.Info("cycle finished",
		zap.String("status", string(result.Status)),
		zap.Int("fetched", result.Fetched),
		zap.Int("valid", result.Valid),
		zap.Int("inserted", result.Upsert.Inserted),
		zap.Int("updated", result.Upsert.Updated),
		zap.Int("alerts_sent", result.AlertsSent))
	return result
}

func (p *Pipeline) run(ctx context.Context, result *domain.CycleResult, log *zap.Logger) error {
	if p.source == nil || p.store == nil {
		return fmt.Errorf("pipeline is not configured")
	}

	report := p.source.FetchAll(ctx, p.clock.Now())
	result.Fetched = len(report.Records)
	for _, f := range report.Failures {
		result.Failures = append(result.Failures, domain.SourceFailure{Source: f.Source, Error: f.Err.Error()})
	}
	if report.Sources == 0 {
		return fmt.Errorf("no sources enabled")
	}
	if report.AllFailed() {
		return fmt.Errorf("all %d sources failed", report.Sources)
	}

	normalized := p.normalizer.Normalize(report.Records)
	result.Valid = len(normalized.Records)
	result.Dropped = normalized.Dropped
	if normalized.Dropped > 0 {
		log.Warn("candidates dropped", zap.Int("dropped", normalized.Dropped), zap.Any("reasons", normalized.DropReasons))
	}
	if len(normalized.Records) == 0 {
		return fmt.Errorf("normalization produced no valid records from %d candidates", normalized.Candidates)
	}

	upsert, err := p.store.Upsert(ctx, normalized.Records)
	if err != nil {
		return fmt.Errorf("persist records: %w", err)
	}
	result.Upsert = upsert

	if p.cache != nil {
		p.cache.Clear()
	}

	if p.alerts != nil {
		dispatch, err := p.alerts.Dispatch(ctx, p.clock.Now())
		if err != nil {
			log.Error("alert evaluation failed", zap.Error(err))
			result.Message = fmt.Sprintf("alert evaluation failed: %v", err)
		}
		result.AlertsSent = dispatch.Sent
		result.AlertsFailed = dispatch.Failed
	}

	if len(report.Failures) > 0 {
		result.Status = domain.CyclePartial
		if result.Message == "" {
			result.Message = fmt.Sprintf("%d of %d sources failed", len(report.Failures), report.Sources)
		}
	}
	return nil
}
