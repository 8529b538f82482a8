// Package retry provides the backoff policy shared by content generation and
// publishing. A Policy is a plain value: copy it and swap the classifier or
// clock as needed.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Clock sleeps; tests substitute a fake that records waits instead
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RealClock is the wall clock
var RealClock Clock = realClock{}

// RetryAfterer is implemented by errors that carry a server-provided wait hint
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// ExhaustedError is returned when the policy gives up on a retryable error
type ExhaustedError struct {
	Attempts int
	Waited   time.Duration
	// BudgetExceeded is true when the next wait would have passed MaxTotalWait
	BudgetExceeded bool
	Err            error
}

func (e *ExhaustedError) Error() string {
	reason := "attempts exhausted"
	if e.BudgetExceeded {
		reason = "wait budget exhausted"
	}
	return fmt.Sprintf("retry: %s after %d attempt(s), waited %s: %v", reason, e.Attempts, e.Waited, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Policy describes how often and how long to retry
type Policy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxTotalWait time.Duration
	// Jitter spreads each delay uniformly over [d*(1-Jitter), d*(1+Jitter)]
	Jitter float64
	// Retryable decides whether an error is worth another attempt. nil retries everything.
	Retryable func(error) bool
	Clock     Clock
	// Rand returns values in [0,1). nil uses math/rand.
	Rand func() float64
}

// WithRetryable returns a copy using the given classifier
func (p Policy) WithRetryable(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

// Delay returns the backoff before retry number n (n >= 1), jitter included
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		r := rand.Float64
		if p.Rand != nil {
			r = p.Rand
		}
		f := 1 - p.Jitter + 2*p.Jitter*r()
		d = time.Duration(float64(d) * f)
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out, or the next wait would push the total past MaxTotalWait.
// Non-retryable errors are returned unwrapped.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	clock := p.Clock
	if clock == nil {
		clock = RealClock
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var waited time.Duration
	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt >= maxAttempts {
			return &ExhaustedError{Attempts: attempt, Waited: waited, Err: err}
		}

		delay := p.Delay(attempt)
		var ra RetryAfterer
		if errors.As(err, &ra) && ra.RetryAfter() > delay {
			delay = ra.RetryAfter()
		}
		if p.MaxTotalWait > 0 && waited+delay > p.MaxTotalWait {
			return &ExhaustedError{Attempts: attempt, Waited: waited, BudgetExceeded: true, Err: err}
		}
		if err := clock.Sleep(ctx, delay); err != nil {
			return err
		}
		waited += delay
	}
}
