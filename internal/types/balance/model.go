package balance

import (
	"time"

	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDeposit          TransactionType = "deposit"
	TypeWithdraw         TransactionType = "withdraw"
	TypeOrderPayment     TransactionType = "order_payment"
	TypeRefund           TransactionType = "refund"
	TypeManualAdjustment TransactionType = "manual_adjustment"
)

// Transaction is one append-only balance ledger row. Amount is signed.
type Transaction struct {
	ID               int64           `db:"id" json:"id"`
	UserID           int64           `db:"user_id" json:"-"`
	Type             TransactionType `db:"type" json:"type"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore    decimal.Decimal `db:"balance_before" json:"balance_before"`
	BalanceAfter     decimal.Decimal `db:"balance_after" json:"balance_after"`
	Reference        *ref.Ref        `json:"reference,omitempty"`
	Description      string          `db:"description" json:"description"`
	AdjustmentReason string          `db:"adjustment_reason" json:"adjustment_reason,omitempty"`
	CreatedBy        *int64          `db:"created_by" json:"-"`
	IPAddress        string          `db:"ip_address" json:"-"`
	UserAgent        string          `db:"user_agent" json:"-"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

type BalanceDTO struct {
	Current decimal.Decimal `json:"current"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}
