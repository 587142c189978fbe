package resilience

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quick(attempts int) Backoff {
	return Backoff{Attempts: attempts, First: time.Millisecond, Ceiling: 4 * time.Millisecond}
}

func TestBackoffRun(t *testing.T) {
	refused := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	refused = errors.Join(refused, syscall.ECONNREFUSED)
	badAuth := errors.New("FATAL: password authentication failed")

	tests := []struct {
		name      string
		attempts  int
		failures  int
		failWith  error
		wantCalls int
		wantErr   error
	}{
		{name: "first try", attempts: 3, wantCalls: 1},
		{name: "recovers", attempts: 3, failures: 2, failWith: refused, wantCalls: 3},
		{name: "gives up", attempts: 3, failures: 10, failWith: refused, wantCalls: 3, wantErr: refused},
		{name: "permanent", attempts: 3, failures: 10, failWith: badAuth, wantCalls: 1, wantErr: badAuth},
		{name: "zero attempts means one", attempts: 0, failures: 10, failWith: refused, wantCalls: 1, wantErr: refused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := quick(tt.attempts).Run(context.Background(), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.Same(t, tt.wantErr, err)
		})
	}
}

func TestBackoffRun_NotifyAndCustomRetryable(t *testing.T) {
	var seen []int
	b := quick(4)
	b.Retryable = func(error) bool { return true }
	b.Notify = func(attempt int, wait time.Duration, _ error) {
		seen = append(seen, attempt)
		assert.LessOrEqual(t, wait, 4*time.Millisecond)
	}

	calls := 0
	err := b.Run(context.Background(), func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestBackoffRun_CanceledDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := Backoff{Attempts: 5, First: time.Hour, Retryable: func(error) bool { return true }}
	b.Notify = func(int, time.Duration, error) { cancel() }

	calls := 0
	start := time.Now()
	err := b.Run(ctx, func(context.Context) error {
		calls++
		return errors.New("not yet")
	})
	require.EqualError(t, err, "not yet")
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBackoffPause(t *testing.T) {
	b := Backoff{First: 100 * time.Millisecond, Ceiling: 350 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, b.pause(1))
	assert.Equal(t, 200*time.Millisecond, b.pause(2))
	assert.Equal(t, 350*time.Millisecond, b.pause(3))
	assert.Equal(t, 350*time.Millisecond, b.pause(10))

	assert.Equal(t, 500*time.Millisecond, Backoff{}.pause(1))

	b.Jitter = 0.5
	for range 50 {
		d := b.pause(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestStartupBackoff(t *testing.T) {
	b := StartupBackoff("postgres")
	assert.Equal(t, 3, b.Attempts)
	assert.Equal(t, 500*time.Millisecond, b.First)
	require.NotNil(t, b.Notify)
	b.Notify(1, time.Second, errors.New("x"))
}
