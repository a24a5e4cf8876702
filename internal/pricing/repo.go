package pricing

import (
	"context"

	"github.com/antonminaichev/wholesale/internal/types/product"
)

type PriceRepository interface {
	UserCustomPrices(ctx context.Context, userID, productID int64) ([]product.CustomPrice, error)
	GroupCustomPrices(ctx context.Context, userID, productID int64) ([]product.CustomPrice, error)
	GroupsForUser(ctx context.Context, userID int64) ([]product.Group, error)
}
