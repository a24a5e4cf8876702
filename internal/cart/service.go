// Package cart keeps the products a buyer collects before checkout, priced live for that buyer.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/stock"
	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/types/cart"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrProductUnavailable   = errors.New("product unavailable")
	ErrBelowMinimumQuantity = errors.New("quantity below product minimum")
	ErrInsufficientStock    = stock.ErrInsufficientStock
	ErrItemNotFound         = errors.New("cart item not found")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrUnavailableItems     = errors.New("cart has unavailable items")
)

var hundred = decimal.NewFromInt(100)

type Service struct {
	tx     storage.Transactor
	repo   CartRepository
	prices PriceResolver
}

func NewService(tx storage.Transactor, repo CartRepository, prices PriceResolver) *Service {
	return &Service{tx: tx, repo: repo, prices: prices}
}

func (s *Service) product(ctx context.Context, id int64) (*product.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !p.IsActive) {
		return nil, fmt.Errorf("%w: product %d", ErrProductUnavailable, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func check(p *product.Product, qty int) error {
	if !p.HasStock(qty) {
		return fmt.Errorf("%w: %d of %s on hand", ErrInsufficientStock, p.StockQuantity, p.SKU)
	}
	if qty < p.MinOrderQuantity {
		return fmt.Errorf("%w: %s needs at least %d", ErrBelowMinimumQuantity, p.SKU, p.MinOrderQuantity)
	}
	return nil
}

// Add puts qty of a product into the buyer's cart, on top of what is already there.
// The minimum order quantity applies to the amount added.
func (s *Service) Add(ctx context.Context, actor user.Actor, productID int64, qty int) (*cart.Item, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	var it *cart.Item
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.product(ctx, productID)
		if err != nil {
			return err
		}
		if err := check(p, qty); err != nil {
			return err
		}
		it, err = s.repo.FindCartItem(ctx, actor.ID, p.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			it = &cart.Item{UserID: actor.ID, ProductID: p.ID, Quantity: qty}
		case err != nil:
			return fmt.Errorf("find cart item: %w", err)
		default:
			it.Quantity += qty
			if !p.HasStock(it.Quantity) {
				return fmt.Errorf("%w: %d of %s on hand", ErrInsufficientStock, p.StockQuantity, p.SKU)
			}
		}
		return s.repo.SaveCartItem(ctx, it)
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Debug("cart item added",
		zap.Int64("user_id", actor.ID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", it.Quantity),
	)
	return it, nil
}

func (s *Service) owned(ctx context.Context, actor user.Actor, itemID int64) (*cart.Item, error) {
	it, err := s.repo.GetCartItem(ctx, itemID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && it.UserID != actor.ID) {
		return nil, ErrItemNotFound
	}
	return it, err
}

func (s *Service) Update(ctx context.Context, actor user.Actor, itemID int64, qty int) (*cart.Item, error) {
	var it *cart.Item
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if it, err = s.owned(ctx, actor, itemID); err != nil {
			return err
		}
		if qty <= 0 {
			it = nil
			return s.repo.DeleteCartItem(ctx, itemID)
		}
		p, err := s.product(ctx, it.ProductID)
		if err != nil {
			return err
		}
		if err := check(p, qty); err != nil {
			return err
		}
		it.Quantity = qty
		return s.repo.SaveCartItem(ctx, it)
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Service) Remove(ctx context.Context, actor user.Actor, itemID int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.owned(ctx, actor, itemID); err != nil {
			return err
		}
		return s.repo.DeleteCartItem(ctx, itemID)
	})
}

func (s *Service) Clear(ctx context.Context, buyerID int64) error {
	if err := s.repo.ClearCart(ctx, buyerID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *Service) line(ctx context.Context, buyerID int64, it cart.Item) (cart.Line, error) {
	l := cart.Line{Item: it}
	p, err := s.repo.GetProduct(ctx, it.ProductID)
	if errors.Is(err, storage.ErrNotFound) {
		return l, nil
	}
	if err != nil {
		return l, fmt.Errorf("get product: %w", err)
	}
	price, err := s.prices.Resolve(ctx, buyerID, p, it.Quantity)
	if err != nil {
		return l, fmt.Errorf("resolve price: %w", err)
	}
	l.SKU = p.SKU
	l.ProductName = p.Name
	l.UnitPrice = price.Unit
	l.PriceSource = string(price.Source)
	l.VATRate = p.VATRate
	l.TotalPrice = price.Unit.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
	l.VATAmount = l.TotalPrice.Mul(p.VATRate).Div(hundred).Round(2)
	l.Available = p.IsActive && p.HasStock(it.Quantity)
	return l, nil
}

// Summary prices every line for the buyer. Unavailable lines stay listed but are left out of the totals.
func (s *Service) Summary(ctx context.Context, buyerID int64) (*cart.Summary, error) {
	items, err := s.repo.ListCartItems(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	sum := &cart.Summary{Lines: []cart.Line{}}
	for _, it := range items {
		l, err := s.line(ctx, buyerID, it)
		if err != nil {
			return nil, err
		}
		sum.Add(l)
	}
	return sum, nil
}

// CheckoutLines turns the cart into order lines. Any unavailable line blocks checkout.
func (s *Service) CheckoutLines(ctx context.Context, buyerID int64) ([]order.CreateLine, error) {
	sum, err := s.Summary(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if len(sum.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	lines := make([]order.CreateLine, 0, len(sum.Lines))
	for _, l := range sum.Lines {
		if !l.Available {
			return nil, fmt.Errorf("%w: %q is out of stock or not for sale", ErrUnavailableItems, l.ProductName)
		}
		lines = append(lines, order.CreateLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return lines, nil
}
