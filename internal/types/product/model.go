package product

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID               int64           `db:"id" json:"id"`
	SKU              string          `db:"sku" json:"sku"`
	Name             string          `db:"name" json:"name"`
	BasePrice        decimal.Decimal `db:"base_price" json:"base_price"`
	VATRate          decimal.Decimal `db:"vat_rate" json:"vat_rate"`
	StockQuantity    int             `db:"stock_quantity" json:"stock_quantity"`
	MinOrderQuantity int             `db:"min_order_quantity" json:"min_order_quantity"`
	Weight           decimal.Decimal `db:"weight" json:"weight"`
	IsActive         bool            `db:"is_active" json:"is_active"`
}

func (p *Product) HasStock(qty int) bool {
	return p.StockQuantity >= qty
}

// CustomPrice is a negotiated price scoped either to one buyer or to a group.
type CustomPrice struct {
	ID          int64           `db:"id" json:"id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	UserID      *int64          `db:"user_id" json:"user_id,omitempty"`
	GroupID     *int64          `db:"customer_group_id" json:"customer_group_id,omitempty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	MinQuantity int             `db:"min_quantity" json:"min_quantity"`
	StartDate   *time.Time      `db:"start_date" json:"start_date,omitempty"`
	EndDate     *time.Time      `db:"end_date" json:"end_date,omitempty"`
}

type Group struct {
	ID                 int64           `db:"id" json:"id"`
	Name               string          `db:"name" json:"name"`
	DiscountPercentage decimal.Decimal `db:"discount_percentage" json:"discount_percentage"`
	IsActive           bool            `db:"is_active" json:"is_active"`
}
