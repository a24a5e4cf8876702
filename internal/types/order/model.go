package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodBalance      PaymentMethod = "balance"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCreditCard, MethodBankTransfer, MethodBalance:
		return true
	}
	return false
}

type Type string

const (
	TypeWarehouse    Type = "warehouse"
	TypeDropshipping Type = "dropshipping"
	TypeCargo        Type = "cargo"
	TypePickup       Type = "pickup"
)

func (t Type) Valid() bool {
	switch t {
	case TypeWarehouse, TypeDropshipping, TypeCargo, TypePickup:
		return true
	}
	return false
}

type DeliveryType string

const (
	DeliveryStandard DeliveryType = "standard"
	DeliveryExpress  DeliveryType = "express"
	DeliveryPickup   DeliveryType = "pickup"
)

// ShippingCost is the flat fee charged per delivery type.
func (d DeliveryType) ShippingCost() (decimal.Decimal, bool) {
	switch d {
	case DeliveryStandard:
		return decimal.NewFromInt(25), true
	case DeliveryExpress:
		return decimal.NewFromInt(50), true
	case DeliveryPickup:
		return decimal.Zero, true
	}
	return decimal.Zero, false
}

type Order struct {
	ID                   int64           `db:"id" json:"id"`
	Number               string          `db:"order_number" json:"order_number"`
	UserID               int64           `db:"user_id" json:"user_id"`
	OrderType            Type            `db:"order_type" json:"order_type"`
	DeliveryType         DeliveryType    `db:"delivery_type" json:"delivery_type"`
	Status               OrderStatus     `db:"status" json:"status"`
	PaymentMethod        *PaymentMethod  `db:"payment_method" json:"payment_method,omitempty"`
	PaymentStatus        PaymentStatus   `db:"payment_status" json:"payment_status"`
	Subtotal             decimal.Decimal `db:"subtotal" json:"subtotal"`
	VATTotal             decimal.Decimal `db:"vat_total" json:"vat_total"`
	DiscountTotal        decimal.Decimal `db:"discount_total" json:"discount_total"`
	ShippingCost         decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	GrandTotal           decimal.Decimal `db:"grand_total" json:"grand_total"`
	ShippingAddress      string          `db:"shipping_address" json:"shipping_address"`
	ShippingContactName  string          `db:"shipping_contact_name" json:"shipping_contact_name"`
	ShippingContactPhone string          `db:"shipping_contact_phone" json:"shipping_contact_phone"`
	BillingAddress       string          `db:"billing_address" json:"billing_address"`
	BillingContactName   string          `db:"billing_contact_name" json:"billing_contact_name"`
	BillingContactPhone  string          `db:"billing_contact_phone" json:"billing_contact_phone"`
	UseDifferentShipping bool            `db:"use_different_shipping" json:"use_different_shipping"`
	IsDropshipping       bool            `db:"is_dropshipping" json:"is_dropshipping"`
	Notes                string          `db:"notes" json:"notes,omitempty"`
	InternalNotes        string          `db:"internal_notes" json:"-"`
	ShippedAt            *time.Time      `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt          *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`

	Items []Item `json:"items,omitempty"`
}

type Item struct {
	ID             int64           `db:"id" json:"id"`
	OrderID        int64           `db:"order_id" json:"-"`
	ProductID      int64           `db:"product_id" json:"product_id"`
	ProductName    string          `db:"product_name" json:"product_name"`
	Quantity       int             `db:"quantity" json:"quantity"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	VATRate        decimal.Decimal `db:"vat_rate" json:"vat_rate"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TotalPrice     decimal.Decimal `db:"total_price" json:"total_price"`
}

var hundred = decimal.NewFromInt(100)

func (i *Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Sub(i.DiscountAmount)
}

func (i *Item) VATAmount() decimal.Decimal {
	return i.Subtotal().Mul(i.VATRate).Div(hundred).Round(2)
}

// CalculateTotal fills TotalPrice from the captured price, quantity, discount and VAT rate.
func (i *Item) CalculateTotal() {
	i.TotalPrice = i.Subtotal().Add(i.VATAmount())
}

// CalculateTotals recomputes every money field of o from its items and shipping cost.
// grand_total = subtotal + vat_total - discount_total + shipping_cost always holds afterwards.
func (o *Order) CalculateTotals() {
	subtotal := decimal.Zero
	vat := decimal.Zero
	discount := decimal.Zero
	for idx := range o.Items {
		it := &o.Items[idx]
		it.CalculateTotal()
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		discount = discount.Add(it.DiscountAmount)
		vat = vat.Add(it.VATAmount())
	}
	o.Subtotal = subtotal.Round(2)
	o.VATTotal = vat.Round(2)
	o.DiscountTotal = discount.Round(2)
	o.GrandTotal = o.Subtotal.Add(o.VATTotal).Sub(o.DiscountTotal).Add(o.ShippingCost).Round(2)
}

func (o *Order) TotalsConsistent() bool {
	return o.GrandTotal.Equal(o.Subtotal.Add(o.VATTotal).Sub(o.DiscountTotal).Add(o.ShippingCost))
}

func (o *Order) CanBeCancelled() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}

func (o *Order) CanBeShipped() bool {
	return o.Status == StatusProcessing && o.PaymentStatus == PaymentPaid
}

func (o *Order) IsTerminal() bool {
	return o.Status == StatusDelivered || o.Status == StatusCancelled
}

func (o *Order) PaidWith(m PaymentMethod) bool {
	return o.PaymentMethod != nil && *o.PaymentMethod == m
}

func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
}

func CanTransition(from, to OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type LogAction string

const (
	LogCreated               LogAction = "created"
	LogStatusChanged         LogAction = "status_changed"
	LogPaymentStatusChanged  LogAction = "payment_status_changed"
	LogPaymentReceived       LogAction = "payment_received"
	LogBankReceiptUploaded   LogAction = "bank_receipt_uploaded"
	LogShipped               LogAction = "shipped"
	LogShipmentStatusChanged LogAction = "shipment_status_changed"
	LogDelivered             LogAction = "delivered"
	LogCancelled             LogAction = "cancelled"
	LogNoteAdded             LogAction = "note_added"
)

type Log struct {
	ID          int64          `db:"id" json:"id"`
	OrderID     int64          `db:"order_id" json:"-"`
	UserID      *int64         `db:"user_id" json:"user_id,omitempty"`
	Action      LogAction      `db:"action" json:"action"`
	Description string         `db:"description" json:"description"`
	OldValue    map[string]any `db:"old_value" json:"old_value,omitempty"`
	NewValue    map[string]any `db:"new_value" json:"new_value,omitempty"`
	IPAddress   string         `db:"ip_address" json:"-"`
	UserAgent   string         `db:"user_agent" json:"-"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// Filter narrows order listings. Zero fields match everything.
type Filter struct {
	UserID        int64
	Status        OrderStatus
	PaymentStatus PaymentStatus
	From          *time.Time
	To            *time.Time
	Limit         int
}

type CreateLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CreateRequest struct {
	Lines                []CreateLine `json:"items"`
	OrderType            Type         `json:"order_type"`
	DeliveryType         DeliveryType `json:"delivery_type"`
	UseDifferentShipping bool         `json:"use_different_shipping"`
	ShippingAddress      string       `json:"shipping_address"`
	ShippingContactName  string       `json:"shipping_contact_name"`
	ShippingContactPhone string       `json:"shipping_contact_phone"`
	IsDropshipping       bool         `json:"is_dropshipping"`
	Notes                string       `json:"notes"`
}
