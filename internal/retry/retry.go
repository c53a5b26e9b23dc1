// Package retry runs upstream calls with a bounded number of fixed-delay attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
	"github.com/JakeFAU/storefront-ingest/internal/logging"
	"github.com/JakeFAU/storefront-ingest/internal/metrics"
)

// Policy bounds the attempts of one operation.
type Policy struct {
	MaxAttempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// DefaultPolicy is three attempts two seconds apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: 2 * time.Second}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ExhaustedFunc is invoked once when every attempt failed.
type ExhaustedFunc func(ctx context.Context, lastErr error) error

// Runner applies a Policy to operations.
type Runner struct {
	policy Policy
	sleep  Sleeper
	logger *zap.Logger
}

// NewRunner builds a Runner. A nil sleep uses a timer that honors ctx.
func NewRunner(policy Policy, sleep Sleeper, logger *zap.Logger) *Runner {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Delay < 0 {
		policy.Delay = 0
	}
	if sleep == nil {
		sleep = SleepContext
	}
	return &Runner{policy: policy, sleep: sleep, logger: logging.OrNop(logger)}
}

// Policy returns the runner's effective policy.
func (r *Runner) Policy() Policy {
	return r.policy
}

// Do invokes fn until it succeeds or the policy is exhausted. Cancellation is
// returned immediately and never reaches onExhausted.
func Do[T any](ctx context.Context, r *Runner, op string, fn func(context.Context) (T, error), onExhausted ExhaustedFunc) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Debug("operation succeeded after retry", zap.String("op", op), zap.Int("attempt", attempt))
			}
			return value, nil
		}
		if catalog.IsCancellation(ctx, err) {
			return zero, err
		}
		lastErr = err
		if attempt == r.policy.MaxAttempts {
			break
		}
		metrics.ObserveRetry(op)
		r.logger.Warn("operation failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("delay", r.policy.Delay),
			zap.Error(err),
		)
		if err := r.sleep(ctx, r.policy.Delay); err != nil {
			return zero, err
		}
	}

	metrics.ObserveRetryExhausted(op)
	r.logger.Warn("operation exhausted retries", zap.String("op", op), zap.Error(lastErr))
	if onExhausted != nil {
		if hookErr := onExhausted(ctx, lastErr); hookErr != nil {
			return zero, errors.Join(lastErr, fmt.Errorf("record exhausted %s: %w", op, hookErr))
		}
	}
	return zero, lastErr
}

// SleepContext waits for d unless ctx finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sleep canceled: %w", err)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
