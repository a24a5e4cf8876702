package shipment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/antonminaichev/wholesale/internal/types/shipment"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrCarrierUnavailable = errors.New("carrier unavailable, try again")

const carrierCode = "aras"

type CarrierRequest struct {
	OrderNumber     string          `json:"orderNumber"`
	CustomerCode    string          `json:"customerCode"`
	ReceiverName    string          `json:"receiverName"`
	ReceiverPhone   string          `json:"receiverPhone"`
	ReceiverAddress string          `json:"receiverAddress"`
	PaymentType     string          `json:"paymentType"`
	ProductType     string          `json:"productType"`
	DeliveryType    string          `json:"deliveryType"`
	PieceCount      int             `json:"pieceCount"`
	Weight          decimal.Decimal `json:"weight"`
	Desi            decimal.Decimal `json:"desi"`
	Content         string          `json:"content"`
	InvoiceNumber   string          `json:"invoiceNumber"`
	InvoiceAmount   decimal.Decimal `json:"invoiceAmount"`
	EmailAddress    string          `json:"emailAddress,omitempty"`
}

// CarrierResponse is shared by every carrier endpoint.
type CarrierResponse struct {
	Result            bool       `json:"result"`
	Message           string     `json:"message"`
	TrackingNumber    string     `json:"trackingNumber"`
	BarcodeData       string     `json:"barcodeData"`
	Status            string     `json:"status"`
	StatusDescription string     `json:"statusDescription"`
	DeliveryDate      *time.Time `json:"deliveryDate"`
	ReceiverName      string     `json:"receiverName"`
}

type Carrier interface {
	Create(ctx context.Context, req CarrierRequest) (*CarrierResponse, error)
	Status(ctx context.Context, trackingNumber string) (*shipment.Update, error)
	Cancel(ctx context.Context, trackingNumber, reason string) error
}

type ArasClient struct {
	Client       *http.Client
	BaseURL      string
	Username     string
	Password     string
	CustomerCode string
}

func NewArasClient(baseURL, username, password, customerCode string, timeout time.Duration) *ArasClient {
	return &ArasClient{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Username:     username,
		Password:     password,
		CustomerCode: customerCode,
	}
}

func (c *ArasClient) post(ctx context.Context, path string, body any) (*CarrierResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.Username, c.Password)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCarrierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrCarrierUnavailable, resp.StatusCode)
	}
	var cr CarrierResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if !cr.Result {
		return nil, fmt.Errorf("carrier refused %s: %s", path, cr.Message)
	}
	return &cr, nil
}

func (c *ArasClient) Create(ctx context.Context, req CarrierRequest) (*CarrierResponse, error) {
	req.CustomerCode = c.CustomerCode
	cr, err := c.post(ctx, "/setOrder", req)
	if err != nil {
		return nil, err
	}
	if cr.TrackingNumber == "" {
		return nil, errors.New("carrier returned no tracking number")
	}
	return cr, nil
}

func (c *ArasClient) Status(ctx context.Context, trackingNumber string) (*shipment.Update, error) {
	cr, err := c.post(ctx, "/getOrderInfo", map[string]string{"trackingNumber": trackingNumber})
	if err != nil {
		return nil, err
	}
	return &shipment.Update{
		TrackingNumber: trackingNumber,
		CarrierStatus:  cr.Status,
		Description:    cr.StatusDescription,
		DeliveryDate:   cr.DeliveryDate,
		ReceiverName:   cr.ReceiverName,
	}, nil
}

func (c *ArasClient) Cancel(ctx context.Context, trackingNumber, reason string) error {
	_, err := c.post(ctx, "/cancelOrder", map[string]string{"trackingNumber": trackingNumber, "reason": reason})
	return err
}

var carrierStatuses = map[string]shipment.Status{
	"CREATED":      shipment.StatusCreated,
	"PICKED_UP":    shipment.StatusPickedUp,
	"TRANSIT":      shipment.StatusInTransit,
	"TRANSFER":     shipment.StatusInTransit,
	"DISTRIBUTION": shipment.StatusOutForDelivery,
	"DELIVERED":    shipment.StatusDelivered,
	"RETURNED":     shipment.StatusReturned,
	"LOST":         shipment.StatusLost,
}

// MapStatus translates carrier vocabulary. Anything unknown counts as in transit.
func MapStatus(s string) shipment.Status {
	if st, ok := carrierStatuses[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return st
	}
	return shipment.StatusInTransit
}
