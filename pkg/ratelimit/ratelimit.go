// Package ratelimit paces calls to the metasearch and scoring services.
// A token bucket provides the sustained rate; optional jitter spreads
// bursts of workers so they do not hit a remote endpoint in lockstep.
package ratelimit

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter with optional post-wait jitter.
// It is safe for concurrent use by multiple goroutines. A nil Limiter
// never blocks.
type Limiter struct {
	limiter  *rate.Limiter
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
}

// New creates a limiter with the given requests per second, burst size,
// and jitter factor. If rps <= 0, the returned limiter does not block.
func New(rps float64, burst int, jitter float64) *Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	return &Limiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		jitter:   jitter,
		interval: time.Duration(float64(time.Second) / rps),
	}
}

// Wait blocks until the next call is permitted or the context is
// cancelled. With jitter configured, an extra random delay of up to
// jitter*interval is added after the token is granted.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	if l.jitter > 0 {
		extra := time.Duration(rand.Float64() * l.jitter * float64(l.interval))
		if extra > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(extra):
			}
		}
	}
	return nil
}

// Allow reports whether a call may proceed immediately.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}
