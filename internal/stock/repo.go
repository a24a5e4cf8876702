package stock

import (
	"context"

	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/antonminaichev/wholesale/internal/types/stock"
)

type StockRepository interface {
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	LockProduct(ctx context.Context, id int64) (*product.Product, error)
	SetProductStock(ctx context.Context, id int64, qty int) error
	AppendStockMovement(ctx context.Context, m *stock.Movement) error
	ListStockMovements(ctx context.Context, productID int64) ([]stock.Movement, error)
	ListLowStockProducts(ctx context.Context, threshold int) ([]product.Product, error)
}
