package shipment

import (
	"context"
	"errors"
	"time"

	"github.com/antonminaichev/wholesale/internal/lock"
	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/types/shipment"
	"go.uber.org/zap"
)

const trackingLockName = "shipment-tracking-poll"

type PollerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	// Delay separates consecutive carrier calls.
	Delay time.Duration
}

type Poller interface {
	ListForPolling(ctx context.Context, staleBefore time.Time) ([]shipment.Shipment, error)
	Track(ctx context.Context, trackingNumber string) error
}

func (t *Tracker) ListForPolling(ctx context.Context, staleBefore time.Time) ([]shipment.Shipment, error) {
	return t.repo.ListShipmentsForPolling(ctx, staleBefore)
}

// PollOnce tracks every open shipment not updated since now-StaleAfter, one carrier call at a time.
// A failed call is logged and the round moves on.
func PollOnce(ctx context.Context, p Poller, locker lock.Locker, cfg PollerConfig, now time.Time) (int, error) {
	polled := 0
	err := lock.Do(ctx, locker, trackingLockName, cfg.Interval, func(ctx context.Context) error {
		list, err := p.ListForPolling(ctx, now.Add(-cfg.StaleAfter))
		if err != nil {
			return err
		}
		for i, sh := range list {
			if i > 0 && cfg.Delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(cfg.Delay):
				}
			}
			if err := p.Track(ctx, sh.TrackingNumber); err != nil {
				logger.Log.Warn("shipment poll failed", zap.String("tracking_number", sh.TrackingNumber), zap.Error(err))
				continue
			}
			polled++
		}
		return nil
	})
	return polled, err
}

func DispatcherLoop(ctx context.Context, p Poller, locker lock.Locker, cfg PollerConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	logger.Log.Info("shipment tracking started", zap.Duration("interval", cfg.Interval), zap.Duration("stale_after", cfg.StaleAfter))
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("shipment tracking stopped")
			return
		case <-ticker.C:
			n, err := PollOnce(ctx, p, locker, cfg, time.Now())
			switch {
			case errors.Is(err, lock.ErrNotAcquired):
				logger.Log.Debug("shipment tracking already running elsewhere")
			case err != nil && !errors.Is(err, context.Canceled):
				logger.Log.Error("shipment tracking failed", zap.Error(err))
			case n > 0:
				logger.Log.Info("shipments polled", zap.Int("count", n))
			}
		}
	}
}
