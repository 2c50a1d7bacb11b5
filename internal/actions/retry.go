package actions

import (
	"context"
	"time"

	"call-screening/internal/telephony"
)

// Policy describes bounded retry for one remote operation. It is independent
// of the call site; terminate and transfer share it.
type Policy struct {
	// MaxAttempts includes the first try.
	MaxAttempts int
	// Backoff returns the pause after failed attempt n (1-based).
	Backoff func(attempt int) time.Duration
	// Retryable decides whether a failed attempt may be repeated.
	Retryable func(err error) bool
	// AttemptTimeout bounds each attempt; exceeding it is a retryable failure.
	AttemptTimeout time.Duration

	// OnRetry, when set, observes each failure that will be retried.
	OnRetry func(attempt int, err error, delay time.Duration)

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// LinearBackoff waits attempt*base: base, 2*base, 3*base...
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// Retryable treats everything except permanent provider answers as
// transient: 5xx, network errors and per-attempt timeouts.
func Retryable(err error) bool {
	return err != nil && !telephony.Permanent(err)
}

// DefaultPolicy is 3 attempts, 1s/2s linear backoff, 10s per attempt.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		Backoff:        LinearBackoff(time.Second),
		Retryable:      Retryable,
		AttemptTimeout: 10 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	out := p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 1
	}
	if out.Backoff == nil {
		out.Backoff = func(int) time.Duration { return 0 }
	}
	if out.Retryable == nil {
		out.Retryable = Retryable
	}
	if out.sleep == nil {
		out.sleep = sleepCtx
	}
	return out
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// It returns the number of attempts made and the last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	p = p.withDefaults()

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = p.try(ctx, fn)
		if err == nil {
			return attempt, nil
		}
		if !p.Retryable(err) || attempt == p.MaxAttempts {
			return attempt, err
		}

		delay := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return attempt, err
		}
	}
	return p.MaxAttempts, err
}

func (p Policy) try(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
