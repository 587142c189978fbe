package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff repeats a connectivity check while a dependency comes up. It is
// used for startup pings only; enrichment work is never repeated.
type Backoff struct {
	Attempts int           // total tries, first included
	First    time.Duration // pause before the second try
	Ceiling  time.Duration // longest pause
	Jitter   float64       // pause varies by ±Jitter of itself

	// Retryable decides whether an error is worth another try. Defaults to
	// IsTransient.
	Retryable func(error) bool
	// Notify runs before each pause.
	Notify func(attempt int, wait time.Duration, err error)
}

// StartupBackoff is the policy for pinging service at startup: three tries,
// half a second apart and doubling, logged through zap.
func StartupBackoff(service string) Backoff {
	return Backoff{
		Attempts: 3,
		First:    500 * time.Millisecond,
		Ceiling:  30 * time.Second,
		Jitter:   0.25,
		Notify: func(attempt int, wait time.Duration, err error) {
			zap.L().Warn("resilience: dependency not ready",
				zap.String("service", service),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}
}

// Run calls fn until it succeeds, returns a non-retryable error, or runs out
// of attempts. The last error is returned unchanged. A done ctx ends the loop
// during a pause.
func (b Backoff) Run(ctx context.Context, fn func(context.Context) error) error {
	attempts := max(b.Attempts, 1)
	retryable := b.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var err error
	for n := 1; ; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if n >= attempts || !retryable(err) || ctx.Err() != nil {
			return err
		}

		wait := b.pause(n)
		if b.Notify != nil {
			b.Notify(n, wait, err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

// pause is the wait after attempt n (1-based): First doubled n-1 times,
// capped at Ceiling, then jittered.
func (b Backoff) pause(n int) time.Duration {
	d := b.First
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	for i := 1; i < n; i++ {
		d *= 2
		if b.Ceiling > 0 && d >= b.Ceiling {
			d = b.Ceiling
			break
		}
	}
	if b.Ceiling > 0 && d > b.Ceiling {
		d = b.Ceiling
	}
	if b.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * b.Jitter * float64(d))
	}
	return max(d, 0)
}
