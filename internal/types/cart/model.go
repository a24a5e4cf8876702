package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is one product a buyer has put aside, unique per buyer and product.
type Item struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"-"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Line is an item priced for its buyer at the current catalog state.
type Line struct {
	Item
	SKU         string          `json:"sku"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	PriceSource string          `json:"price_source"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
	Available   bool            `json:"available"`
}

type Totals struct {
	ItemCount        int             `json:"item_count"`
	ProductCount     int             `json:"product_count"`
	UnavailableCount int             `json:"unavailable_count"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	VATTotal         decimal.Decimal `json:"vat_total"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
}

type Summary struct {
	Lines []Line `json:"items"`
	Totals
}

// Add folds l into the totals. Unavailable lines are counted but not priced in.
func (s *Summary) Add(l Line) {
	s.Lines = append(s.Lines, l)
	s.ProductCount++
	if !l.Available {
		s.UnavailableCount++
		return
	}
	s.ItemCount += l.Quantity
	s.Subtotal = s.Subtotal.Add(l.TotalPrice)
	s.VATTotal = s.VATTotal.Add(l.VATAmount)
	s.GrandTotal = s.Subtotal.Add(s.VATTotal)
}
