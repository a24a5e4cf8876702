package shipment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCreated        Status = "created"
	StatusPickedUp       Status = "picked_up"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusReturned       Status = "returned"
	StatusLost           Status = "lost"
)

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusReturned || s == StatusLost
}

type Shipment struct {
	ID                int64           `db:"id" json:"id"`
	OrderID           int64           `db:"order_id" json:"order_id"`
	Carrier           string          `db:"carrier" json:"carrier"`
	TrackingNumber    string          `db:"tracking_number" json:"tracking_number"`
	Status            Status          `db:"status" json:"status"`
	StatusDescription string          `db:"status_description" json:"status_description,omitempty"`
	Weight            decimal.Decimal `db:"weight" json:"weight"`
	Desi              decimal.Decimal `db:"desi" json:"desi"`
	LabelPath         string          `db:"label_path" json:"-"`
	IsDropshipping    bool            `db:"is_dropshipping" json:"is_dropshipping"`
	ShippedAt         *time.Time      `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	DeliverySignature string          `db:"delivery_signature" json:"delivery_signature,omitempty"`
	LastUpdateAt      *time.Time      `db:"last_update_at" json:"last_update_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// Update is one status observation from the carrier, pushed or polled.
type Update struct {
	TrackingNumber string
	CarrierStatus  string
	Description    string
	DeliveryDate   *time.Time
	ReceiverName   string
}

var trackingURLs = map[string]string{
	"aras":    "https://kargotakip.araskargo.com.tr/mainpage.aspx?code=",
	"mng":     "https://www.mngkargo.com.tr/gonderi-takip/?code=",
	"yurtici": "https://www.yurticikargo.com/tr/online-servisler/gonderi-sorgula?code=",
	"ups":     "https://www.ups.com/track?tracknum=",
	"dhl":     "https://www.dhl.com/tr-tr/home/tracking.html?tracking-id=",
}

// TrackingURL links to the carrier's public tracking page, or "" for unknown carriers.
func (s *Shipment) TrackingURL() string {
	base, ok := trackingURLs[s.Carrier]
	if !ok || s.TrackingNumber == "" {
		return ""
	}
	return base + s.TrackingNumber
}

type Tracking struct {
	OrderNumber string    `json:"order_number"`
	OrderStatus string    `json:"order_status"`
	Shipment    *Shipment `json:"shipment,omitempty"`
	TrackingURL string    `json:"tracking_url,omitempty"`
}
