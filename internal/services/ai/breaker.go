package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the breaker rejects calls to a failing provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig controls when the provider breaker trips.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration
	// HalfOpenMaxRequests is the number of probe calls allowed while half-open.
	HalfOpenMaxRequests uint32
}

// DefaultBreakerConfig returns the settings used by the server and worker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMaxRequests: 2}
}

// BreakerProvider wraps a Provider with a circuit breaker so a failing
// upstream is rejected fast instead of eating the request budget.
type BreakerProvider struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker
}

// WithCircuitBreaker wraps p.
func WithCircuitBreaker(p Provider, cfg BreakerConfig, logger *zap.Logger) *BreakerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// Caller cancellations say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm_circuit_state_changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerProvider{next: p, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Name implements Provider.
func (b *BreakerProvider) Name() string { return b.next.Name() }

// State reports the current breaker state ("closed", "open" or "half-open").
func (b *BreakerProvider) State() string { return b.breaker.State().String() }

func (b *BreakerProvider) execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return res, err
}

// GenerateText implements TextGenerator.
func (b *BreakerProvider) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	res, err := b.execute(func() (interface{}, error) {
		return b.next.GenerateText(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// CallFunction implements FunctionCaller.
func (b *BreakerProvider) CallFunction(ctx context.Context, req FunctionRequest) (*FunctionResponse, error) {
	res, err := b.execute(func() (interface{}, error) {
		return b.next.CallFunction(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*FunctionResponse), nil
}

var _ Provider = (*BreakerProvider)(nil)
