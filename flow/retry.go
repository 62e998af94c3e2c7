package flow

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Strategy selects how the retry delay grows with the attempt number.
type Strategy int

const (
	// Fixed waits BaseDelay before every retry.
	Fixed Strategy = iota

	// Linear waits BaseDelay * attempt, capped at MaxDelay.
	Linear

	// Exponential waits BaseDelay * 2^(attempt-1), capped at MaxDelay,
	// then jittered.
	Exponential

	// DecorrelatedJitter waits a uniform value between BaseDelay and
	// BaseDelay * 3^(attempt-1), capped at MaxDelay. The randomness is
	// built in; JitterFraction is not applied on top.
	DecorrelatedJitter
)

// RetryPolicy configures automatic re-execution of a failing step.
type RetryPolicy struct {
	// MaxAttempts is the total number of execution attempts, including the
	// first. Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay seeds the delay computation.
	BaseDelay time.Duration

	// Strategy selects the growth curve.
	Strategy Strategy

	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration

	// JitterFraction j spreads the computed delay by a uniform factor in
	// [1-j, 1+j]. Zero disables jitter. Ignored by DecorrelatedJitter.
	JitterFraction float64

	// Retryable decides whether a given failure is worth retrying. Nil
	// retries every failure.
	Retryable func(error) bool
}

// Validate checks the policy's constraints.
func (p *RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if p.MaxDelay > 0 && p.BaseDelay > 0 && p.MaxDelay < p.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	if p.JitterFraction < 0 || p.JitterFraction > 1 {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// Delay computes the wait before the retry following the given attempt
// (1-based). The computation is pure apart from draws on rng; a nil rng
// disables jitter and makes DecorrelatedJitter collapse to its upper bound.
func (p *RetryPolicy) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay

	var d time.Duration
	switch p.Strategy {
	case Fixed:
		d = base
	case Linear:
		d = p.cap(time.Duration(attempt) * base)
	case Exponential:
		d = p.cap(scaleDelay(base, math.Pow(2, float64(attempt-1))))
	case DecorrelatedJitter:
		upper := scaleDelay(base, math.Pow(3, float64(attempt-1)))
		span := upper - base
		if span < 0 {
			span = 0
		}
		u := 1.0
		if rng != nil {
			u = rng.Float64()
		}
		return p.cap(base + time.Duration(math.Round(u*float64(span))))
	default:
		d = base
	}

	return p.jitter(d, rng)
}

// cap applies MaxDelay when configured.
func (p *RetryPolicy) cap(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// jitter spreads d by a uniform factor in [1-j, 1+j], never below zero.
func (p *RetryPolicy) jitter(d time.Duration, rng *rand.Rand) time.Duration {
	j := p.JitterFraction
	if j == 0 || rng == nil {
		return d
	}
	factor := 1 - j + 2*j*rng.Float64()
	if factor < 0 {
		factor = 0
	}
	return time.Duration(float64(d) * factor)
}

// retryable reports whether err should be retried under this policy.
func (p *RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// scaleDelay multiplies a duration by a float factor, saturating instead of
// overflowing for large exponents.
func scaleDelay(d time.Duration, factor float64) time.Duration {
	v := float64(d) * factor
	if v > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(v)
}

// sleep waits for d or until the context is cancelled, whichever comes
// first. Returns the context's error on cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
