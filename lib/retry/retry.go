// Package retry provides a bounded attempt combinator shared by the
// navigation, pagination and resource-observation code paths.
package retry

import (
	"context"
	"time"
)

// Policy describes how long to wait between attempts. The wait for attempt
// n (zero-based) is Base * Factor^n, capped at Max. A zero Policy performs
// no waiting at all.
type Policy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (p Policy) delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 1
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Attempt runs fn up to maxAttempts times, waiting according to the policy
// between failures. The first nil error wins. If the context is cancelled
// during a backoff wait, ctx.Err() is returned. After exhaustion the last
// error from fn is returned.
func Attempt(ctx context.Context, maxAttempts int, policy Policy, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.delay(attempt - 1)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}
