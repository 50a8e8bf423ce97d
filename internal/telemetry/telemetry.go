package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

const meterName = "pdufa-scanner"

// Telemetry owns the meter provider and every instrument the service records.
// All Record methods are safe to call on a nil *Telemetry.
type Telemetry struct {
	Meter metric.Meter

	logger   *zap.Logger
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	fetches       metric.Int64Counter
	fetchRecords  metric.Int64Counter
	fetchDuration metric.Float64Histogram
	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
	alerts        metric.Int64Counter
	cacheLookups  metric.Int64Counter
	httpRequests  metric.Int64Counter
	httpDuration  metric.Float64Histogram
}

// NewTelemetry builds an OpenTelemetry meter backed by a private Prometheus registry.
func NewTelemetry(logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)

	t := &Telemetry{
		Meter:    meter,
		logger:   logger.Named("telemetry"),
		provider: provider,
		registry: registry,
	}
	if err := t.initInstruments(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Telemetry) initInstruments() error {
	var err error
	if t.fetches, err = t.Meter.Int64Counter("pdufa_source_fetches",
		metric.WithDescription("Source fetch attempts by site and outcome")); err != nil {
		return fmt.Errorf("create fetch counter: %w", err)
	}
	if t.fetchRecords, err = t.Meter.Int64Counter("pdufa_source_records",
		metric.WithDescription("Raw records returned per site")); err != nil {
		return fmt.Errorf("create record counter: %w", err)
	}
	if t.fetchDuration, err = t.Meter.Float64Histogram("pdufa_source_fetch_seconds",
		metric.WithDescription("Source fetch latency"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("create fetch histogram: %w", err)
	}
	if t.cycles, err = t.Meter.Int64Counter("pdufa_cycles",
		metric.WithDescription("Completed scrape cycles by trigger and status")); err != nil {
		return fmt.Errorf("create cycle counter: %w", err)
	}
	if t.cycleDuration, err = t.Meter.Float64Histogram("pdufa_cycle_seconds",
		metric.WithDescription("Scrape cycle latency"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("create cycle histogram: %w", err)
	}
	if t.alerts, err = t.Meter.Int64Counter("pdufa_alerts",
		metric.WithDescription("Alert deliveries by channel and outcome")); err != nil {
		return fmt.Errorf("create alert counter: %w", err)
	}
	if t.cacheLookups, err = t.Meter.Int64Counter("pdufa_cache_lookups",
		metric.WithDescription("Query cache lookups by result")); err != nil {
		return fmt.Errorf("create cache counter: %w", err)
	}
	if t.httpRequests, err = t.Meter.Int64Counter("pdufa_http_requests",
		metric.WithDescription("HTTP requests by method, route and status")); err != nil {
		return fmt.Errorf("create http counter: %w", err)
	}
	if t.httpDuration, err = t.Meter.Float64Histogram("pdufa_http_request_seconds",
		metric.WithDescription("HTTP request latency"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("create http histogram: %w", err)
	}
	return nil
}

// RecordFetch tracks one site fetch.
func (t *Telemetry) RecordFetch(ctx context.Context, site string, count int, err error, dur time.Duration) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("site", site), attribute.String("outcome", outcome(err)))
	t.fetches.Add(ctx, 1, attrs)
	t.fetchRecords.Add(ctx, int64(count), metric.WithAttributes(attribute.String("site", site)))
	t.fetchDuration.Record(ctx, dur.Seconds(), attrs)
}

// RecordCycle tracks one finished scrape cycle.
func (t *Telemetry) RecordCycle(ctx context.Context, trigger, status string, dur time.Duration) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("trigger", trigger), attribute.String("status", status))
	t.cycles.Add(ctx, 1, attrs)
	t.cycleDuration.Record(ctx, dur.Seconds(), attrs)
}

// RecordAlert tracks one alert delivery attempt chain.
func (t *Telemetry) RecordAlert(ctx context.Context, channel string, err error) {
	if t == nil {
		return
	}
	t.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel), attribute.String("outcome", outcome(err))))
}

// RecordCacheHit counts a cache hit.
func (t *Telemetry) RecordCacheHit(ctx context.Context) {
	t.recordCache(ctx, "hit")
}

// RecordCacheMiss counts a cache miss.
func (t *Telemetry) RecordCacheMiss(ctx context.Context) {
	t.recordCache(ctx, "miss")
}

func (t *Telemetry) recordCache(ctx context.Context, result string) {
	if t == nil {
		return
	}
	t.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordHTTP tracks one served request.
func (t *Telemetry) RecordHTTP(ctx context.Context, method, route string, status int, dur time.Duration) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	t.httpRequests.Add(ctx, 1, attrs)
	t.httpDuration.Record(ctx, dur.Seconds(), attrs)
}

// Handler exposes the registry in the Prometheus text format.
func (t *Telemetry) Handler() http.Handler {
	if t == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		t.logger.Warn("meter provider shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
