// Package openai talks to OpenAI-compatible endpoints: chat completions for
// ideas (OpenRouter by default) and the images API for paintings.
package openai

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	pkgerrors "atelier/pkg/errors"
	"atelier/pkg/observability"
)

// GenerationMetrics receives one sample per upstream call.
type GenerationMetrics interface {
	RecordGeneration(kind, outcome string, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordGeneration(string, string, time.Duration) {}

// GuardConfig tunes the protection around one upstream service.
type GuardConfig struct {
	Name string

	// RequestsPerSecond caps outbound calls; zero disables the limiter.
	RequestsPerSecond float64
	Burst             int

	// CallTimeout bounds each upstream call, not the limiter wait. Zero
	// leaves the caller's deadline alone.
	CallTimeout time.Duration

	// The breaker opens once FailureThreshold of at least MinRequests calls
	// in Interval failed, and lets one call through again after Timeout.
	MinRequests      uint32
	FailureThreshold float64
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultGuardConfig returns a default configuration for an upstream service
func DefaultGuardConfig(name string, rps float64) GuardConfig {
	return GuardConfig{
		Name:              name,
		RequestsPerSecond: rps,
		Burst:             1,
		MinRequests:       5,
		FailureThreshold:  0.8,
		Interval:          30 * time.Second,
		Timeout:           60 * time.Second,
	}
}

// Guard wraps upstream calls with a rate limiter, a circuit breaker, a span
// and a metrics sample. Content-policy rejections do not count against the
// breaker.
type Guard struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
	metrics GenerationMetrics
	logger  *zap.Logger
}

func NewGuard(cfg GuardConfig, metrics GenerationMetrics, logger *zap.Logger) *Guard {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	g := &Guard{name: cfg.Name, timeout: cfg.CallTimeout, metrics: metrics, logger: logger}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || pkgerrors.IsSafety(err)
		},
	})
	return g
}

// Do runs fn under the guard. kind labels the span and the metrics sample.
// Errors that are not already AppErrors come back as upstream errors.
func (g *Guard) Do(ctx context.Context, kind string, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "generation."+kind,
		attribute.String("generation.service", g.name),
	)
	defer span.End()

	start := time.Now()
	err := g.do(ctx, fn)

	outcome := "success"
	switch {
	case err == nil:
	case pkgerrors.IsSafety(err):
		outcome = "safety"
	default:
		outcome = "error"
	}
	g.metrics.RecordGeneration(kind, outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("generation.outcome", outcome))
	return err
}

func (g *Guard) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return pkgerrors.NewUpstreamError(g.name, err)
		}
	}

	_, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return nil, fn(callCtx)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return pkgerrors.NewUpstreamError(g.name, err).WithCode("TIMEOUT")
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.NewUpstreamError(g.name, err).WithCode("CIRCUIT_OPEN")
	}
	if pkgerrors.IsAppError(err) {
		return err
	}
	return pkgerrors.NewUpstreamError(g.name, err)
}
