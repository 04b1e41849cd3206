// Package retry implements bounded retries with exponential backoff for
// the remote-call boundary. Transient failures (timeouts, rate limits,
// 5xx responses) are retried up to the attempt budget; anything wrapped
// with Permanent stops immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Policy controls the retry schedule.
type Policy struct {
	// Attempts is the total attempt budget, including the first call.
	Attempts int
	// Delay is the backoff before the second attempt.
	Delay time.Duration
	// MaxDelay caps the backoff between attempts.
	MaxDelay time.Duration
	// Multiplier grows the delay after each failed attempt.
	Multiplier float64
}

// DefaultPolicy mirrors the collection scripts: three attempts, short
// initial delay, doubling.
var DefaultPolicy = Policy{
	Attempts:   3,
	Delay:      300 * time.Millisecond,
	MaxDelay:   5 * time.Second,
	Multiplier: 2,
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable. Do returns it unwrapped on
// the first occurrence.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do invokes fn until it succeeds, the attempt budget is exhausted, the
// error is permanent, or the context is cancelled. The returned error is
// the last failure, annotated with the attempt count when the budget ran
// out.
func Do(ctx context.Context, p Policy, fn func() error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}

	delay := p.Delay
	var lastErr error

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		if attempt == p.Attempts {
			break
		}

		// Full jitter keeps concurrent workers from retrying in lockstep.
		sleep := delay
		if sleep > 0 {
			sleep = time.Duration(rand.Int63n(int64(sleep))) + sleep/2
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return fmt.Errorf("after %d attempts: %w", p.Attempts, lastErr)
}
