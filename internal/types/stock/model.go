package stock

import (
	"time"

	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementAdjustment MovementType = "adjustment"
	MovementReturn     MovementType = "return"
	MovementReserved   MovementType = "reserved"
	MovementCancelled  MovementType = "cancelled"
)

type Movement struct {
	ID          int64            `db:"id" json:"id"`
	ProductID   int64            `db:"product_id" json:"product_id"`
	Type        MovementType     `db:"type" json:"type"`
	Quantity    int              `db:"quantity" json:"quantity"`
	StockBefore int              `db:"stock_before" json:"stock_before"`
	StockAfter  int              `db:"stock_after" json:"stock_after"`
	Reference   *ref.Ref         `json:"reference,omitempty"`
	Description string           `db:"description" json:"description"`
	UnitCost    *decimal.Decimal `db:"unit_cost" json:"unit_cost,omitempty"`
	CreatedBy   *int64           `db:"created_by" json:"created_by,omitempty"`
	IPAddress   string           `db:"ip_address" json:"-"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
