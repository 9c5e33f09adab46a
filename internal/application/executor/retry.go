package executor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds how an action is retried before it is dead-lettered
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration

	// AttemptTimeout bounds a single attempt; zero means no bound
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
		AttemptTimeout:    10 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = 2.0
	}
	return p
}

// Backoff returns the delay after the given failed attempt (1-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	delay := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		delay *= p.BackoffMultiplier
		if p.MaxBackoff > 0 && delay >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && time.Duration(delay) > p.MaxBackoff {
		return p.MaxBackoff
	}
	return time.Duration(delay)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error that retrying cannot fix
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs fn until it succeeds, returns a permanent error, the attempts run out
// or ctx is done. It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = p.attempt(ctx, fn)
		if lastErr == nil {
			return attempt, nil
		}
		if IsPermanent(lastErr) {
			return attempt, lastErr
		}
		if attempt == p.MaxAttempts {
			return attempt, lastErr
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return p.MaxAttempts, lastErr
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}
