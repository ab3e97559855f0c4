// Package resilience wraps vendor and broker I/O with a circuit breaker so a
// struggling collaborator degrades into a bounded number of retries instead
// of stalling the engine loop indefinitely.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/eventkernel/tradeengine/internal/telemetry"
)

// Config configures a Breaker.
type Config struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures uint32
}

// DefaultConfig returns the breaker settings the feeder uses around vendor
// month-file fetches: once at least two requests have been seen, three
// consecutive failures or a failure ratio of 60% or more trips it (so two
// failures in a row already do), and it stays open for thirty seconds
// before allowing a probe request.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		MaxFailures: 3,
	}
}

// Breaker wraps gobreaker with engine telemetry on every state change.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewBreaker builds a Breaker from config, logging every state transition.
func NewBreaker(ctx context.Context, config Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 2 && (counts.ConsecutiveFailures >= config.MaxFailures || failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			telemetry.LogEvent(ctx, "warn", "circuit_breaker_state_change", map[string]any{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](settings), name: config.Name}
}

// Execute runs fn under circuit-breaker protection, wrapping any failure
// (including a trip failure) with the breaker's name for context.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := b.cb.Execute(func() (any, error) { return fn(ctx) })
	if err != nil {
		return nil, fmt.Errorf("resilience: breaker %s: %w", b.name, err)
	}
	return result, nil
}

// State returns the breaker's current gobreaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Name returns the breaker's configured name.
func (b *Breaker) Name() string { return b.name }
