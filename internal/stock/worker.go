package stock

import (
	"context"
	"errors"
	"time"

	"github.com/antonminaichev/wholesale/internal/events"
	"github.com/antonminaichev/wholesale/internal/lock"
	"github.com/antonminaichev/wholesale/internal/logger"
	"go.uber.org/zap"
)

const lowStockLockName = "low-stock-check"

// LowStockOnce publishes one stock.low event listing active products below threshold.
func LowStockOnce(ctx context.Context, l *Ledger, pub events.Publisher, locker lock.Locker, threshold int) (int, error) {
	found := 0
	err := lock.Do(ctx, locker, lowStockLockName, 10*time.Minute, func(ctx context.Context) error {
		products, err := l.LowStock(ctx, threshold)
		if err != nil {
			return err
		}
		found = len(products)
		if found == 0 {
			return nil
		}
		items := make([]map[string]any, 0, found)
		for _, p := range products {
			items = append(items, map[string]any{
				"product_id": p.ID,
				"sku":        p.SKU,
				"name":       p.Name,
				"stock":      p.StockQuantity,
			})
		}
		events.Emit(ctx, pub, events.New(events.StockLow, "stock", map[string]any{
			"threshold": threshold,
			"products":  items,
		}))
		return nil
	})
	return found, err
}

func LowStockLoop(ctx context.Context, l *Ledger, pub events.Publisher, locker lock.Locker, threshold int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := LowStockOnce(ctx, l, pub, locker, threshold)
			switch {
			case errors.Is(err, lock.ErrNotAcquired):
			case err != nil:
				logger.Log.Error("low stock check failed", zap.Error(err))
			case n > 0:
				logger.Log.Info("low stock products reported", zap.Int("count", n), zap.Int("threshold", threshold))
			}
		}
	}
}
