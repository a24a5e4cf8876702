package order

import (
	"context"
	"errors"

	"github.com/antonminaichev/wholesale/internal/events"
	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"go.uber.org/zap"
)

var (
	ErrNoCart           = errors.New("cart is not configured")
	ErrNothingReordered = errors.New("no item of the order could be added to the cart")
)

// CreateFromCart places an order for everything in the buyer's cart and empties it.
// The cart is only cleared when the order commits.
func (s *Service) CreateFromCart(ctx context.Context, actor user.Actor, req order.CreateRequest) (*order.Order, error) {
	if s.cart == nil {
		return nil, ErrNoCart
	}
	base := ctx
	ctx, batch := events.Defer(ctx)
	var o *order.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lines, err := s.cart.CheckoutLines(ctx, actor.ID)
		if err != nil {
			return err
		}
		req.Lines = lines
		if o, err = s.Create(ctx, actor, req); err != nil {
			return err
		}
		return s.cart.Clear(ctx, actor.ID)
	})
	if err != nil {
		s.fail("checkout", 0, actor, err)
		return nil, err
	}
	batch.Flush(base, s.events)
	return o, nil
}

type ReorderFailure struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Reason      string `json:"reason"`
}

type ReorderResult struct {
	Added  int              `json:"added"`
	Failed []ReorderFailure `json:"failed,omitempty"`
}

// Reorder copies the lines of one of the buyer's past orders into their cart.
// Lines that no longer fit are reported and skipped; nothing added is an error.
func (s *Service) Reorder(ctx context.Context, actor user.Actor, number string) (*ReorderResult, error) {
	if s.cart == nil {
		return nil, ErrNoCart
	}
	o, err := s.Get(ctx, actor, number)
	if err != nil {
		return nil, err
	}
	if o.UserID != actor.ID {
		return nil, ErrOrderNotFound
	}
	res := &ReorderResult{}
	for _, it := range o.Items {
		if _, err := s.cart.Add(ctx, actor, it.ProductID, it.Quantity); err != nil {
			res.Failed = append(res.Failed, ReorderFailure{ProductID: it.ProductID, ProductName: it.ProductName, Reason: err.Error()})
			continue
		}
		res.Added++
	}
	logger.Log.Info("order repeated",
		zap.String("order_number", o.Number),
		zap.Int64("actor_id", actor.ID),
		zap.Int("added", res.Added),
		zap.Int("failed", len(res.Failed)),
	)
	if res.Added == 0 {
		return res, ErrNothingReordered
	}
	return res, nil
}
