package order

import (
	"context"
	"time"

	"github.com/antonminaichev/wholesale/internal/pricing"
	"github.com/antonminaichev/wholesale/internal/types/balance"
	"github.com/antonminaichev/wholesale/internal/types/cart"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/payment"
	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/antonminaichev/wholesale/internal/types/shipment"
	"github.com/antonminaichev/wholesale/internal/types/stock"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
)

type OrderRepository interface {
	NextOrderSequence(ctx context.Context, day time.Time) (int, error)
	CreateOrder(ctx context.Context, o *order.Order) error
	CreateOrderItems(ctx context.Context, orderID int64, items []order.Item) error
	UpdateOrder(ctx context.Context, o *order.Order) error
	FindOrder(ctx context.Context, id int64) (*order.Order, error)
	LockOrder(ctx context.Context, id int64) (*order.Order, error)
	FindOrderByNumber(ctx context.Context, number string) (*order.Order, error)
	ListOrders(ctx context.Context, f order.Filter) ([]order.Order, error)
	ListExpiredOrders(ctx context.Context, cutoff time.Time) ([]order.Order, error)
	AppendOrderLog(ctx context.Context, l *order.Log) error
	ListOrderLogs(ctx context.Context, orderID int64) ([]order.Log, error)

	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	FindUserByID(ctx context.Context, id int64) (*user.User, error)
	GetCompany(ctx context.Context, userID int64) (*user.Company, error)
	ListPayments(ctx context.Context, orderID int64) ([]payment.Transaction, error)
	FindShipmentByOrder(ctx context.Context, orderID int64) (*shipment.Shipment, error)
}

type PriceResolver interface {
	Resolve(ctx context.Context, buyerID int64, p *product.Product, qty int) (pricing.Price, error)
}

type StockReserver interface {
	Reserve(ctx context.Context, productID int64, qty int, orderID int64) (*stock.Movement, error)
	Release(ctx context.Context, productID int64, qty int, orderID int64) (*stock.Movement, error)
}

type BalanceRefunder interface {
	Refund(ctx context.Context, buyerID int64, amount decimal.Decimal, reason string, r *ref.Ref, actor user.Actor) (*balance.Transaction, error)
}

// Cart is the buyer's cart as checkout and reorder see it.
type Cart interface {
	CheckoutLines(ctx context.Context, buyerID int64) ([]order.CreateLine, error)
	Clear(ctx context.Context, buyerID int64) error
	Add(ctx context.Context, actor user.Actor, productID int64, qty int) (*cart.Item, error)
}
