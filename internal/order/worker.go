package order

import (
	"context"
	"errors"
	"time"

	"github.com/antonminaichev/wholesale/internal/lock"
	"github.com/antonminaichev/wholesale/internal/logger"
	"go.uber.org/zap"
)

type ExpiredCanceller interface {
	CancelExpired(ctx context.Context, cutoff time.Time) (int, error)
}

const sweepLockName = "order-payment-timeout-sweep"

// SweepOnce cancels orders left unpaid for longer than grace, unless another sweep holds the lock.
func SweepOnce(ctx context.Context, svc ExpiredCanceller, locker lock.Locker, grace time.Duration, now time.Time) (int, error) {
	cancelled := 0
	err := lock.Do(ctx, locker, sweepLockName, 10*time.Minute, func(ctx context.Context) error {
		var err error
		cancelled, err = svc.CancelExpired(ctx, now.Add(-grace))
		return err
	})
	return cancelled, err
}

// SweepLoop runs SweepOnce every interval until ctx is done.
func SweepLoop(ctx context.Context, svc ExpiredCanceller, locker lock.Locker, grace, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Log.Info("payment timeout sweep started", zap.Duration("interval", interval), zap.Duration("grace", grace))
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("payment timeout sweep stopped")
			return
		case <-ticker.C:
			n, err := SweepOnce(ctx, svc, locker, grace, time.Now())
			switch {
			case errors.Is(err, lock.ErrNotAcquired):
				logger.Log.Debug("payment timeout sweep already running elsewhere")
			case err != nil:
				logger.Log.Error("payment timeout sweep failed", zap.Error(err))
			case n > 0:
				logger.Log.Info("expired orders cancelled", zap.Int("count", n))
			}
		}
	}
}
