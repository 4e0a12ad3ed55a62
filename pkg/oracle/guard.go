package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/AgenticFinLab/FinMycelium/internal/util"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
)

// GuardParams configures a Guard.
type GuardParams struct {
	// CallTimeout bounds each individual model call.
	CallTimeout time.Duration
	// MaxTries is the number of attempts for transient failures.
	MaxTries int
	// RetryBaseDelay is the first backoff delay between transient
	// attempts; it doubles per retry. Zero means one second.
	RetryBaseDelay time.Duration
	// RequestsPerMinute throttles outgoing calls. Zero disables throttling.
	RequestsPerMinute int
	// BreakerName labels the circuit breaker in logs.
	BreakerName string
}

// Guard wraps a Client with a per-call timeout, rate limiting, a circuit
// breaker and bounded retries for transient failures. Only transient errors
// count against the breaker; malformed output is a caller problem and passes
// straight through.
type Guard struct {
	inner      Client
	timeout    time.Duration
	maxTries   int
	retryDelay time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewGuard wraps inner with the protections in params.
func NewGuard(inner Client, params GuardParams) *Guard {
	if params.CallTimeout <= 0 {
		params.CallTimeout = 2 * time.Minute
	}
	if params.MaxTries <= 0 {
		params.MaxTries = 3
	}
	if params.RetryBaseDelay <= 0 {
		params.RetryBaseDelay = time.Second
	}
	name := params.BreakerName
	if name == "" {
		name = "oracle"
	}

	var limiter *rate.Limiter
	if params.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(params.RequestsPerMinute)/60.0), params.RequestsPerMinute)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var nbe *nonBreakerError
			return errors.As(err, &nbe)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Guard{
		inner:      inner,
		timeout:    params.CallTimeout,
		maxTries:   params.MaxTries,
		retryDelay: params.RetryBaseDelay,
		limiter:    limiter,
		breaker:    breaker,
	}
}

func (g *Guard) call(ctx context.Context, fn func(context.Context) error) error {
	// Only transient failures earn another attempt. Malformed output goes
	// back to the caller (who may re-ask with a corrective prompt) and an
	// open breaker fails the call outright.
	_, err := util.RetryWithBackoff(ctx, g.maxTries, g.retryDelay, 10*g.retryDelay, IsTransient, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.attempt(ctx, fn)
	})
	return err
}

func (g *Guard) attempt(ctx context.Context, fn func(context.Context) error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	_, err := g.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		err := fn(callCtx)
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			// A per-call timeout is transient from the caller's view.
			return nil, fmt.Errorf("%w: call timed out after %s", ErrTransient, g.timeout)
		}
		if err != nil && !IsTransient(err) {
			// Do not trip the breaker on caller problems.
			return nil, &nonBreakerError{err}
		}
		return nil, err
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var nbe *nonBreakerError
	if errors.As(err, &nbe) {
		return nbe.err
	}
	return err
}

type nonBreakerError struct {
	err error
}

func (e *nonBreakerError) Error() string { return e.err.Error() }
func (e *nonBreakerError) Unwrap() error { return e.err }

func (g *Guard) Complete(ctx context.Context, prompt string, opts ...Option) (string, error) {
	var result string
	err := g.call(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = g.inner.Complete(ctx, prompt, opts...)
		return innerErr
	})
	return result, err
}

func (g *Guard) CompleteStructured(ctx context.Context, name string, description string, prompt string, out any, opts ...Option) error {
	return g.call(ctx, func(ctx context.Context) error {
		return g.inner.CompleteStructured(ctx, name, description, prompt, out, opts...)
	})
}

func (g *Guard) Embed(ctx context.Context, input []byte) ([]float32, error) {
	var result []float32
	err := g.call(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = g.inner.Embed(ctx, input)
		return innerErr
	})
	return result, err
}

func (g *Guard) GetUsage() Usage {
	return g.inner.GetUsage()
}

func (g *Guard) ResetUsage() {
	g.inner.ResetUsage()
}
