package service

import (
	"context"
	rand "math/rand/v2"
	"time"
)

// RetryPolicy bounds how often and how slowly a call is retried.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
}

// nextDelay returns a decorrelated jitter delay in [base, prev*multiplier),
// capped at p.Max. The first delay is base.
func (p RetryPolicy) nextDelay(prev time.Duration, rng *rand.Rand) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 3
	}
	if p.Max > 0 && p.Max < base {
		return p.Max
	}
	if prev <= 0 {
		return base
	}

	spread := time.Duration(float64(prev)*mult) - base
	if spread <= 0 {
		spread = base
	}
	var jitter int64
	if rng != nil {
		jitter = rng.Int64N(int64(spread))
	} else {
		jitter = rand.Int64N(int64(spread)) //nolint:gosec // non-crypto backoff jitter
	}

	next := base + time.Duration(jitter)
	if p.Max > 0 && next > p.Max {
		return p.Max
	}
	return next
}

// withRetry calls fn until it succeeds, the retries are spent or ctx ends.
// It returns the last error from fn and the number of calls made.
func withRetry(ctx context.Context, policy RetryPolicy, rng *rand.Rand, fn func(ctx context.Context) error) (int, error) {
	var (
		delay time.Duration
		err   error
	)
	calls := 0
	for {
		calls++
		if err = fn(ctx); err == nil {
			return calls, nil
		}
		if calls > policy.MaxRetries {
			return calls, err
		}

		delay = policy.nextDelay(delay, rng)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return calls, err
		case <-timer.C:
		}
	}
}
