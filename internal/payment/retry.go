package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"evrental-backend/internal/domain"
	"evrental-backend/internal/logger"
)

// RetryPolicy bounds the exponential backoff used when the processor is
// unavailable.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// delay returns the wait before attempt n+1, doubling from BaseDelay and
// capped at MaxDelay.
func (p RetryPolicy) delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// VerifyWithRetry calls g.Verify, retrying only ErrUnavailable. When every
// attempt fails transiently the result wraps domain.ErrVerificationUnavailable.
func VerifyWithRetry(ctx context.Context, g Gateway, sessionID string, policy RetryPolicy) (*domain.PaymentRecord, error) {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for n := 1; n <= attempts; n++ {
		rec, err := g.Verify(ctx, sessionID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		lastErr = err
		if n == attempts {
			break
		}

		wait := policy.delay(n)
		logger.Warn("Payment verification unavailable, retrying", "sessionID", sessionID, "attempt", n, "wait", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", domain.ErrVerificationUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", domain.ErrVerificationUnavailable, attempts, lastErr)
}
