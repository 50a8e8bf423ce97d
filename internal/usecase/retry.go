package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go"

	"PDUFAScanner/internal/config"
	"PDUFAScanner/internal/domain"
)

// RetryPolicy bounds redelivery of a failed send with exponential backoff.
type RetryPolicy struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// NewRetryPolicy converts the alert retry config.
func NewRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
	}
}

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out or ctx ends. It reports how many attempts were made.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error, onRetry func(n uint, err error)) (int, error) {
	attempts := 0
	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	if onRetry == nil {
		onRetry = func(uint, error) {}
	}

	err := retry.Do(
		func() error {
			attempts++
			return fn(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.Delay(p.InitialDelay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(p.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return retryable(ctx, err) }),
		retry.OnRetry(onRetry),
	)
	return attempts, err
}

// delay honours a server-supplied Retry-After when it fits under MaxDelay and
// falls back to exponential backoff otherwise.
func (p RetryPolicy) delay(n uint, err error, cfg *retry.Config) time.Duration {
	var se *domain.StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 && (p.MaxDelay <= 0 || se.RetryAfter <= p.MaxDelay) {
		return se.RetryAfter
	}
	return retry.BackOffDelay(n, err, cfg)
}

// retryable decides from the caller's ctx, not the error chain: a client
// timeout also matches context.DeadlineExceeded and must still be retried.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, domain.ErrMisconfigured) {
		return false
	}
	var se *domain.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
