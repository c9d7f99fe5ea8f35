package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/shammah/internal/backoff"
	"golang.org/x/time/rate"
)

// base holds the retry/rate-limit machinery shared by every Provider
// implementation, adapted from the teacher's BaseProvider but upgraded
// from linear to exponential-backoff-with-jitter (spec §4.2's "retrying
// send" with no prescribed backoff shape) and given a per-provider token
// bucket ahead of the retry loop so a burst of queries backs off before
// ever hitting the wire.
type base struct {
	name       string
	maxRetries int
	policy     backoff.BackoffPolicy
	limiter    *rate.Limiter
}

func newBase(name string, maxRetries int, ratePerSecond float64, burst int) base {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	if burst <= 0 {
		burst = 5
	}
	return base{
		name:       name,
		maxRetries: maxRetries,
		policy:     backoff.DefaultPolicy(),
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// retry runs op, honoring ctx cancellation, the provider's rate limiter,
// and exponential backoff between retryable failures.
func (b *base) retry(ctx context.Context, model string, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter wait: %w", b.name, err)
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		wrapped := NewProviderError(b.name, model, err)
		if !wrapped.Reason.IsRetryable() {
			return wrapped
		}
		if attempt >= b.maxRetries {
			break
		}
		delay := backoff.ComputeBackoff(b.policy, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: max retries exceeded: %w", b.name, NewProviderError(b.name, model, lastErr))
}
