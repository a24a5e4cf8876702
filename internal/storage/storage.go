package storage

import (
	"context"
	"errors"
	"time"

	"github.com/antonminaichev/wholesale/internal/types/balance"
	"github.com/antonminaichev/wholesale/internal/types/cart"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/payment"
	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/antonminaichev/wholesale/internal/types/shipment"
	"github.com/antonminaichev/wholesale/internal/types/stock"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Transactor runs fn inside one database transaction carried by the context.
// A call made with a context that already carries a transaction joins it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository отвечает за пользователей и профили компаний.
type UserRepository interface {
	CreateUser(ctx context.Context, u *user.User) error
	FindUserByEmail(ctx context.Context, email string) (*user.User, error)
	FindUserByID(ctx context.Context, id int64) (*user.User, error)
	CreateCompany(ctx context.Context, c *user.Company) error
	GetCompany(ctx context.Context, userID int64) (*user.Company, error)
}

// BalanceRepository отвечает за баланс и журнал балансовых операций.
type BalanceRepository interface {
	LockCompany(ctx context.Context, userID int64) (*user.Company, error)
	SetCompanyBalance(ctx context.Context, userID int64, amount decimal.Decimal) error
	AppendBalanceTransaction(ctx context.Context, t *balance.Transaction) error
	ListBalanceTransactions(ctx context.Context, userID int64) ([]balance.Transaction, error)
}

// CatalogRepository отвечает за товары, остатки и цены.
type CatalogRepository interface {
	CreateProduct(ctx context.Context, p *product.Product) error
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	LockProduct(ctx context.Context, id int64) (*product.Product, error)
	SetProductStock(ctx context.Context, id int64, qty int) error
	AppendStockMovement(ctx context.Context, m *stock.Movement) error
	ListStockMovements(ctx context.Context, productID int64) ([]stock.Movement, error)
	ListLowStockProducts(ctx context.Context, threshold int) ([]product.Product, error)

	CreateCustomPrice(ctx context.Context, p *product.CustomPrice) error
	CreateGroup(ctx context.Context, g *product.Group) error
	AddUserToGroup(ctx context.Context, userID, groupID int64) error
	UserCustomPrices(ctx context.Context, userID, productID int64) ([]product.CustomPrice, error)
	GroupCustomPrices(ctx context.Context, userID, productID int64) ([]product.CustomPrice, error)
	GroupsForUser(ctx context.Context, userID int64) ([]product.Group, error)
}

type CartRepository interface {
	FindCartItem(ctx context.Context, userID, productID int64) (*cart.Item, error)
	GetCartItem(ctx context.Context, id int64) (*cart.Item, error)
	// SaveCartItem inserts the item or replaces the quantity of the buyer's existing line for the product.
	SaveCartItem(ctx context.Context, it *cart.Item) error
	DeleteCartItem(ctx context.Context, id int64) error
	ListCartItems(ctx context.Context, userID int64) ([]cart.Item, error)
	ClearCart(ctx context.Context, userID int64) error
}

// OrderRepository отвечает за заказы, позиции и журнал заказа.
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
}

// PaymentRepository отвечает за попытки оплаты.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, t *payment.Transaction) error
	UpdatePayment(ctx context.Context, t *payment.Transaction) error
	LockPayment(ctx context.Context, id int64) (*payment.Transaction, error)
	LockPaymentByTransactionID(ctx context.Context, transactionID string) (*payment.Transaction, error)
	ListPayments(ctx context.Context, orderID int64) ([]payment.Transaction, error)
}

// ShipmentRepository отвечает за отправки.
type ShipmentRepository interface {
	CreateShipment(ctx context.Context, s *shipment.Shipment) error
	UpdateShipment(ctx context.Context, s *shipment.Shipment) error
	FindShipmentByOrder(ctx context.Context, orderID int64) (*shipment.Shipment, error)
	LockShipmentByTracking(ctx context.Context, trackingNumber string) (*shipment.Shipment, error)
	ListShipmentsForPolling(ctx context.Context, staleBefore time.Time) ([]shipment.Shipment, error)
}

type Storage interface {
	Transactor
	UserRepository
	BalanceRepository
	CatalogRepository
	CartRepository
	OrderRepository
	PaymentRepository
	ShipmentRepository

	Ping(ctx context.Context) error
	Close() error
}
