package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/ports"
	"PDUFAScanner/internal/telemetry"
)

// testAlertHorizon is how far ahead SendTestAlert looks for a real record.
const testAlertHorizon = 365

// AlertDeps wires the dispatcher.
type AlertDeps struct {
	Store         ports.PDUFARepository
	Ledger        ports.AlertLedger
	Notifiers     []ports.Notifier
	Policy        RetryPolicy
	LookaheadDays int
	SuppressFor   time.Duration
	Location      *time.Location
	Metrics       *telemetry.Telemetry
	Logger        *zap.Logger
}

// AlertDispatcher decides which decisions to announce and delivers them.
type AlertDispatcher struct {
	store       ports.PDUFARepository
	ledger      ports.AlertLedger
	notifiers   []ports.Notifier
	policy      RetryPolicy
	lookahead   int
	suppressFor time.Duration
	loc         *time.Location
	metrics     *telemetry.Telemetry
	logger      *zap.Logger
}

// NewAlertDispatcher builds a dispatcher. SuppressFor of zero suppresses an
// alerted event forever.
func NewAlertDispatcher(deps AlertDeps) *AlertDispatcher {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &AlertDispatcher{
		store:       deps.Store,
		ledger:      deps.Ledger,
		notifiers:   deps.Notifiers,
		policy:      deps.Policy,
		lookahead:   deps.LookaheadDays,
		suppressFor: deps.SuppressFor,
		loc:         deps.Location,
		metrics:     deps.Metrics,
		logger:      deps.Logger.Named("alerts"),
	}
}

// Channels lists the configured notifier names.
func (d *AlertDispatcher) Channels() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Evaluate returns alerts for records dated within [today, today+lookahead]
// whose event has not been alerted inside the suppression window.
func (d *AlertDispatcher) Evaluate(ctx context.Context, records []domain.PDUFARecord, now time.Time) ([]domain.Alert, error) {
	today := domain.DateIn(now, d.loc)
	alerts := make([]domain.Alert, 0)

	for _, r := range records {
		days := today.DaysUntil(r.PDUFADate)
		if days < 0 || days > d.lookahead {
			continue
		}

		key := r.EventKey().String()
		at, seen, err := d.ledger.AlertedAt(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("check ledger for %s: %w", key, err)
		}
		if seen && (d.suppressFor == 0 || now.Sub(at) < d.suppressFor) {
			continue
		}

		alerts = append(alerts, domain.Alert{
			Record:    r.Clone(),
			DaysUntil: days,
			CreatedAt: now,
		})
	}
	return alerts, nil
}

// Send delivers alert on every channel with retries. The event is marked in
// the ledger once at least one channel accepted it; test alerts never are.
// It fails only when no channel delivered.
func (d *AlertDispatcher) Send(ctx context.Context, alert domain.Alert) error {
	if len(d.notifiers) == 0 {
		return errors.New("no alert channels configured")
	}

	key := alert.Record.EventKey().String()
	var (
		delivered bool
		failures  []error
	)
	for _, n := range d.notifiers {
		channel := n.Name()
		attempts, err := d.policy.Do(ctx, func(ctx context.Context) error {
			return n.Notify(ctx, alert)
		}, func(attempt uint, err error) {
			d.logger.Warn("alert delivery retry",
				zap.String("channel", channel),
				zap.String("event", key),
				zap.Uint("attempt", attempt+1),
				zap.Error(err))
		})
		d.metrics.RecordAlert(ctx, channel, err)

		if err != nil {
			derr := &domain.DeliveryError{Channel: channel, Attempts: attempts, Err: err}
			d.logger.Error("alert delivery failed", zap.String("event", key), zap.Error(derr))
			failures = append(failures, derr)
			continue
		}
		delivered = true
		d.logger.Info("alert delivered",
			zap.String("channel", channel),
			zap.String("event", key),
			zap.Bool("test", alert.Test),
			zap.Int("attempts", attempts))
	}

	if !delivered {
		return errors.Join(failures...)
	}
	if alert.Test {
		return nil
	}
	if err := d.ledger.MarkAlerted(ctx, key, alert.CreatedAt); err != nil {
		return fmt.Errorf("mark %s alerted: %w", key, err)
	}
	return nil
}

// Dispatch evaluates the upcoming window and sends every qualifying alert.
func (d *AlertDispatcher) Dispatch(ctx context.Context, now time.Time) (domain.DispatchResult, error) {
	var result domain.DispatchResult

	records, err := d.store.QueryUpcoming(ctx, domain.DateIn(now, d.loc), d.lookahead)
	if err != nil {
		return result, fmt.Errorf("load upcoming: %w", err)
	}
	alerts, err := d.Evaluate(ctx, records, now)
	if err != nil {
		return result, err
	}
	result.Qualifying = len(alerts)

	for _, alert := range alerts {
		if err := d.Send(ctx, alert); err != nil {
			result.Failed++
			continue
		}
		result.Sent++
	}
	return result, nil
}

// SendTestAlert sends the nearest upcoming record, or a synthetic sample when
// the store is empty, bypassing evaluation and the ledger.
func (d *AlertDispatcher) SendTestAlert(ctx context.Context, now time.Time) (domain.Alert, error) {
	today := domain.DateIn(now, d.loc)

	record := domain.PDUFARecord{
		Ticker:      "TEST",
		Company:     "Sample Therapeutics",
		Drug:        "TEST-001",
		PDUFADate:   today.AddDays(d.lookahead),
		Description: "Synthetic record used to verify alert delivery.",
		Sources:     []string{"test"},
		LastUpdated: now,
	}
	upcoming, err := d.store.QueryUpcoming(ctx, today, testAlertHorizon)
	if err != nil {
		d.logger.Warn("test alert falls back to sample record", zap.Error(err))
	} else if len(upcoming) > 0 {
		record = upcoming[0]
	}

	alert := domain.Alert{
		Record:    record,
		DaysUntil: today.DaysUntil(record.PDUFADate),
		Test:      true,
		CreatedAt: now,
	}
	if err := d.Send(ctx, alert); err != nil {
		return alert, err
	}
	return alert, nil
}
