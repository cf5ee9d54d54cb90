package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/modelmind/tensorcore/pkg/types"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejects
// reads to prevent hammering a struggling store during a sweep.
var ErrCircuitOpen = errors.New("storage circuit breaker is open")

// BreakerConfig holds circuit breaker tuning for the response store.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 5.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing test
	// requests. Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required
	// in half-open state to close the circuit again. Default: 2.
	HalfOpenMaxSuccesses uint32
}

// BreakerStore wraps a ResponseStore with a circuit breaker. During batch
// sweeps a failing store would otherwise absorb one timeout per domain per
// engine; tripping the breaker converts that into fast ErrCircuitOpen
// failures that the sweeper logs and skips.
//
// Only the read side is wrapped. Writes go through the engines' single
// upsert/insert per run and carry their own error path.
type BreakerStore struct {
	inner   ResponseStore
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner with default breaker settings.
func NewBreakerStore(inner ResponseStore) *BreakerStore {
	return NewBreakerStoreWithConfig(inner, BreakerConfig{
		MaxFailures:          5,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	})
}

// NewBreakerStoreWithConfig wraps inner with custom breaker settings.
func NewBreakerStoreWithConfig(inner ResponseStore, cfg BreakerConfig) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        "ResponseStore",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	return &BreakerStore{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State returns the breaker state as "closed", "open" or "half-open".
func (b *BreakerStore) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// execute runs fn through the breaker, translating the open-state error.
func (b *BreakerStore) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// ListDomains implements ResponseStore.
func (b *BreakerStore) ListDomains(ctx context.Context) ([]types.Domain, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.ListDomains(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.Domain), nil
}

// ListResponses implements ResponseStore.
func (b *BreakerStore) ListResponses(ctx context.Context, domainID string, since time.Time) ([]types.Response, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.ListResponses(ctx, domainID, since)
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.Response), nil
}

// ListMemoryNotes implements ResponseStore.
func (b *BreakerStore) ListMemoryNotes(ctx context.Context, domainID string, limit int) ([]types.MemoryNote, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.ListMemoryNotes(ctx, domainID, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.MemoryNote), nil
}
