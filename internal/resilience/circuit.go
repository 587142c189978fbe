// Package resilience guards calls to external collaborators: a circuit
// breaker for request-time calls and a backoff for startup pings.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is where a breaker stands.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	// CircuitHalfOpen admits a single probe call.
	CircuitHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ErrCircuitOpen rejects a call without attempting it.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls a breaker. Zero values take defaults.
type CircuitBreakerConfig struct {
	Name string
	// FailureThreshold is the run of failures that opens the circuit. Default 5.
	FailureThreshold int
	// ResetTimeout is how long an open circuit waits before probing. Default 30s.
	ResetTimeout time.Duration
}

// CircuitBreaker fails calls fast after a collaborator has failed
// FailureThreshold times in a row. Once ResetTimeout has passed, one probe
// call is let through; its outcome closes or reopens the circuit. Caller
// cancellation is neither a failure nor a success.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      cfg.Name,
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.ResetTimeout,
		now:       time.Now,
	}
	if cb.threshold <= 0 {
		cb.threshold = 5
	}
	if cb.cooldown <= 0 {
		cb.cooldown = 30 * time.Second
	}
	return cb
}

// ExecuteVal runs fn unless the circuit rejects it, and records the outcome.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	probe, err := cb.admit()
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(ctx)
	cb.record(probe, err)
	return v, err
}

// State reports the breaker's state. An open circuit past its cooldown
// reports half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		return CircuitHalfOpen
	}
	return cb.state
}

// admit reports whether the call is the half-open probe.
func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return false, nil
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false, ErrCircuitOpen
		}
		cb.transition(CircuitHalfOpen)
	}
	if cb.probing {
		return false, ErrCircuitOpen
	}
	cb.probing = true
	return true, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe {
		cb.probing = false
	}

	switch {
	case errors.Is(err, context.Canceled):
		// A canceled probe leaves the circuit half-open for the next caller.
	case err == nil:
		cb.failures = 0
		cb.transition(CircuitClosed)
	default:
		cb.failures++
		if probe || cb.failures >= cb.threshold {
			cb.openedAt = cb.now()
			cb.transition(CircuitOpen)
		}
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	zap.L().Info("resilience: circuit state change",
		zap.String("circuit", cb.name),
		zap.Stringer("from", cb.state),
		zap.Stringer("to", to),
		zap.Int("failures", cb.failures),
	)
	cb.state = to
}

// Breakers hands out one breaker per named collaborator, all sharing a
// config.
type Breakers struct {
	cfg CircuitBreakerConfig

	mu  sync.Mutex
	set map[string]*CircuitBreaker
}

func NewBreakers(cfg CircuitBreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, set: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for name, creating it on first use.
func (b *Breakers) Get(name string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.set[name]
	if !ok {
		cfg := b.cfg
		cfg.Name = name
		cb = NewCircuitBreaker(cfg)
		b.set[name] = cb
	}
	return cb
}
