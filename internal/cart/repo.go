package cart

import (
	"context"

	"github.com/antonminaichev/wholesale/internal/pricing"
	"github.com/antonminaichev/wholesale/internal/types/cart"
	"github.com/antonminaichev/wholesale/internal/types/product"
)

type CartRepository interface {
	FindCartItem(ctx context.Context, userID, productID int64) (*cart.Item, error)
	GetCartItem(ctx context.Context, id int64) (*cart.Item, error)
	SaveCartItem(ctx context.Context, it *cart.Item) error
	DeleteCartItem(ctx context.Context, id int64) error
	ListCartItems(ctx context.Context, userID int64) ([]cart.Item, error)
	ClearCart(ctx context.Context, userID int64) error

	GetProduct(ctx context.Context, id int64) (*product.Product, error)
}

type PriceResolver interface {
	Resolve(ctx context.Context, buyerID int64, p *product.Product, qty int) (pricing.Price, error)
}
