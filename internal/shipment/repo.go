package shipment

import (
	"context"
	"time"

	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/antonminaichev/wholesale/internal/types/shipment"
	"github.com/antonminaichev/wholesale/internal/types/user"
)

type ShipmentRepository interface {
	CreateShipment(ctx context.Context, s *shipment.Shipment) error
	UpdateShipment(ctx context.Context, s *shipment.Shipment) error
	FindShipmentByOrder(ctx context.Context, orderID int64) (*shipment.Shipment, error)
	LockShipmentByTracking(ctx context.Context, trackingNumber string) (*shipment.Shipment, error)
	ListShipmentsForPolling(ctx context.Context, staleBefore time.Time) ([]shipment.Shipment, error)
	AppendOrderLog(ctx context.Context, l *order.Log) error
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	FindUserByID(ctx context.Context, id int64) (*user.User, error)
}

// OrderWorkflow is the part of the order service shipments drive.
type OrderWorkflow interface {
	Get(ctx context.Context, actor user.Actor, number string) (*order.Order, error)
	GetByID(ctx context.Context, actor user.Actor, orderID int64) (*order.Order, error)
	MarkShipped(ctx context.Context, actor user.Actor, orderID int64, trackingNumber string) (*order.Order, error)
	MarkDelivered(ctx context.Context, actor user.Actor, orderID int64, at time.Time) (*order.Order, error)
}
