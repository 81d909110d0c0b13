package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Policy configures exponential backoff. Passed by value; zero fields fall
// back to sane defaults via normalize.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	return p
}

// Permanent wraps an error that must not be retried.
type Permanent struct {
	Err error
}

func (p Permanent) Error() string { return p.Err.Error() }

func (p Permanent) Unwrap() error { return p.Err }

// Do runs fn under the policy, sleeping with exponential backoff between
// attempts. It stops early on context cancellation or a Permanent error and
// returns the last error once attempts are exhausted.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	policy = policy.normalize()

	var lastErr error
	delay := policy.InitialDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var permanent Permanent
		if errors.As(lastErr, &permanent) {
			return permanent.Err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.Factor)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return fmt.Errorf("after %d attempts: %w", policy.MaxAttempts, lastErr)
}

// Gate spaces out calls to a rate-limited dependency. Each adapter owns its
// own Gate instance; there is no ambient shared limiter.
type Gate struct {
	interval time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

// NewGate builds a gate that allows one acquisition per interval.
func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval}
}

// Acquire blocks until the interval since the previous acquisition has
// elapsed, or the context is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if g == nil || g.interval <= 0 {
		return ctx.Err()
	}

	g.mu.Lock()
	now := time.Now()
	next := g.lastCall.Add(g.interval)
	if next.Before(now) {
		next = now
	}
	g.lastCall = next
	g.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
