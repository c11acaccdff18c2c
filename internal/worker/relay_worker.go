package worker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Relay is a long-running subscription that returns when its connection
// drops or ctx is done.
type Relay interface {
	Run(ctx context.Context, ready chan<- struct{}) error
}

// DefaultRelayBackOff retries forever, capping the wait at 30 seconds.
func DefaultRelayBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// StartRelayWorker keeps relay subscribed until ctx is done, resubscribing
// after each disconnect. ready is closed after the first Run call has
// started.
func StartRelayWorker(ctx context.Context, relay Relay, newBackOff func() backoff.BackOff, logger *zap.Logger, ready chan<- struct{}) {
	if newBackOff == nil {
		newBackOff = DefaultRelayBackOff
	}
	b := backoff.WithContext(newBackOff(), ctx)

	first := ready
	for {
		err := relay.Run(ctx, first)
		first = nil
		if ctx.Err() != nil {
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			logger.Error("event relay gave up", zap.Error(err))
			return
		}
		logger.Warn("event relay disconnected; resubscribing",
			zap.Duration("retry_in", wait), zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
