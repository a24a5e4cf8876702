package payment

import (
	"time"

	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const CurrencyTRY = "TRY"

// Transaction is one attempt to collect money for an order. Attempts are never overwritten.
type Transaction struct {
	ID               int64               `db:"id" json:"id"`
	OrderID          int64               `db:"order_id" json:"order_id"`
	TransactionID    string              `db:"transaction_id" json:"transaction_id"`
	Method           order.PaymentMethod `db:"payment_method" json:"payment_method"`
	Amount           decimal.Decimal     `db:"amount" json:"amount"`
	Currency         string              `db:"currency" json:"currency"`
	Status           Status              `db:"status" json:"status"`
	CardHolderName   string              `db:"card_holder_name" json:"card_holder_name,omitempty"`
	MaskedCardNumber string              `db:"masked_card_number" json:"masked_card_number,omitempty"`
	BankName         string              `db:"bank_name" json:"bank_name,omitempty"`
	BankReceipt      string              `db:"bank_receipt" json:"bank_receipt,omitempty"`
	GatewayResponse  map[string]any      `db:"gateway_response" json:"-"`
	ErrorMessage     string              `db:"error_message" json:"error_message,omitempty"`
	ProcessedAt      *time.Time          `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updated_at"`
}

func (t *Transaction) Settled() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed || t.Status == StatusCancelled
}

type Request struct {
	OrderNumber string              `json:"order_number"`
	Method      order.PaymentMethod `json:"payment_method"`
	BankName    string              `json:"bank_name,omitempty"`
	// BankReceipt is the base64 content of the uploaded receipt file.
	BankReceipt     string `json:"bank_receipt,omitempty"`
	BankReceiptName string `json:"bank_receipt_name,omitempty"`
}

type Result struct {
	Transaction *Transaction `json:"transaction"`
	Token       string       `json:"token,omitempty"`
	IframeURL   string       `json:"iframe_url,omitempty"`
	MerchantOID string       `json:"merchant_oid,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// Callback is the asynchronous notification posted by the card gateway.
type Callback struct {
	MerchantOID     string
	Status          string
	TotalAmount     string
	Hash            string
	MaskedPAN       string
	CardHolderName  string
	FailedReasonMsg string
}
