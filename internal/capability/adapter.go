package capability

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-enricher/internal/cost"
	"github.com/sells-group/lead-enricher/internal/resilience"
)

// AdapterConfig bounds every call made through an Adapter.
type AdapterConfig struct {
	Timeout           time.Duration
	RequestsPerMinute int
	Burst             int
	Breaker           resilience.CircuitBreakerConfig
}

// Adapter invokes tasks against one provider. It never retries: a call that
// fails is reported once and the caller decides what to do.
type Adapter struct {
	provider Provider
	timeout  time.Duration
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	calc     *cost.Calculator
}

// NewAdapter wraps provider with the configured guards. A nil calc leaves
// generation cost at zero.
func NewAdapter(provider Provider, cfg AdapterConfig, calc *cost.Calculator) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg.Name = provider.Name()
	}

	return &Adapter{
		provider: provider,
		timeout:  cfg.Timeout,
		limiter:  limiter,
		breaker:  resilience.NewCircuitBreaker(breakerCfg),
		calc:     calc,
	}
}

// Provider returns the wrapped provider's name.
func (a *Adapter) Provider() string { return a.provider.Name() }

// Invoke binds vars into task and makes exactly one provider call.
func (a *Adapter) Invoke(ctx context.Context, task Task, vars Vars) (*Generation, error) {
	prompt, err := Bind(task, vars)
	if err != nil {
		return nil, err
	}

	fail := func(kind Kind, cause error) error {
		return &Error{Kind: kind, Task: task.Name, Provider: a.provider.Name(), Err: cause}
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(classify(ctx, ctx, err), err)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		kind := KindTimeout
		if ctx.Err() != nil {
			kind = classify(ctx, ctx, err)
		}
		return nil, fail(kind, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	gen, err := resilience.ExecuteVal(callCtx, a.breaker, func(c context.Context) (*Generation, error) {
		return a.provider.Generate(c, prompt)
	})
	elapsed := time.Since(start)

	if err != nil {
		kind := classify(ctx, callCtx, err)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			kind = KindUnavailable
		}
		zap.L().Warn("capability: invoke failed",
			zap.String("task", task.Name),
			zap.String("provider", a.provider.Name()),
			zap.String("kind", string(kind)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, fail(kind, err)
	}

	if gen == nil || strings.TrimSpace(gen.Text) == "" {
		return nil, fail(KindEmptyGeneration, errors.New("provider returned no text"))
	}

	gen.Text = strings.TrimSpace(gen.Text)
	if gen.Provider == "" {
		gen.Provider = a.provider.Name()
	}
	if gen.Model == "" {
		gen.Model = a.provider.Model()
	}
	if a.calc != nil {
		gen.Usage.Cost = a.calc.Generation(gen.Model, gen.Usage)
	}

	zap.L().Debug("capability: invoke complete",
		zap.String("task", task.Name),
		zap.String("provider", gen.Provider),
		zap.String("model", gen.Model),
		zap.Int("input_tokens", gen.Usage.InputTokens),
		zap.Int("output_tokens", gen.Usage.OutputTokens),
		zap.Float64("cost_usd", gen.Usage.Cost),
		zap.Duration("elapsed", elapsed),
	)
	return gen, nil
}

// Close releases the provider.
func (a *Adapter) Close() error {
	return a.provider.Close()
}
