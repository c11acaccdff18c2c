package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings tunes BreakerClient.
type BreakerSettings struct {
	// CallTimeout bounds each round-trip.
	CallTimeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenFor is how long the breaker rejects calls before probing again.
	OpenFor time.Duration
}

// BreakerClient guards a Client with per-call timeouts and a circuit breaker
// so an unreachable calendar fails appointment calls fast.
type BreakerClient struct {
	next    Client
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewBreakerClient decorates next.
func NewBreakerClient(next Client, settings BreakerSettings, logger *zap.Logger) *BreakerClient {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenFor <= 0 {
		settings.OpenFor = 30 * time.Second
	}
	if settings.CallTimeout <= 0 {
		settings.CallTimeout = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "calendar",
		MaxRequests: 1,
		Timeout:     settings.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// A missing slot is a valid answer, not a backend failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrSlotNotFound)
		},
	})
	return &BreakerClient{next: next, cb: cb, timeout: settings.CallTimeout}
}

func (b *BreakerClient) Get(ctx context.Context, slotID string) (*Slot, error) {
	res, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return b.next.Get(ctx, slotID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Slot), nil
}

func (b *BreakerClient) List(ctx context.Context, timeMin time.Time) ([]Slot, error) {
	res, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return b.next.List(ctx, timeMin)
	})
	if err != nil {
		return nil, err
	}
	return res.([]Slot), nil
}

func (b *BreakerClient) Patch(ctx context.Context, slotID string, p Patch, notify bool) (*Slot, error) {
	res, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return b.next.Patch(ctx, slotID, p, notify)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Slot), nil
}

func (b *BreakerClient) execute(ctx context.Context, call func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return call(callCtx)
	})
	if err == nil {
		return res, nil
	}
	if errors.Is(err, ErrSlotNotFound) || errors.Is(err, ErrUnavailable) {
		return nil, err
	}
	// gobreaker.ErrOpenState, ErrTooManyRequests and deadline errors land here.
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Disabled is used when no calendar backend is configured; every call
// reports ErrUnavailable.
type Disabled struct{}

func (Disabled) Get(context.Context, string) (*Slot, error) { return nil, ErrUnavailable }

func (Disabled) List(context.Context, time.Time) ([]Slot, error) { return nil, ErrUnavailable }

func (Disabled) Patch(context.Context, string, Patch, bool) (*Slot, error) {
	return nil, ErrUnavailable
}
