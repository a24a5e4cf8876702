package payment

import (
	"context"

	"github.com/antonminaichev/wholesale/internal/balance"
	balancetypes "github.com/antonminaichev/wholesale/internal/types/balance"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/payment"
	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
)

type PaymentRepository interface {
	CreatePayment(ctx context.Context, t *payment.Transaction) error
	UpdatePayment(ctx context.Context, t *payment.Transaction) error
	LockPayment(ctx context.Context, id int64) (*payment.Transaction, error)
	LockPaymentByTransactionID(ctx context.Context, transactionID string) (*payment.Transaction, error)
	ListPayments(ctx context.Context, orderID int64) ([]payment.Transaction, error)
	FindUserByID(ctx context.Context, id int64) (*user.User, error)
}

// OrderWorkflow is the part of the order service payments drive.
type OrderWorkflow interface {
	Get(ctx context.Context, actor user.Actor, number string) (*order.Order, error)
	MarkPaid(ctx context.Context, actor user.Actor, orderID int64, method order.PaymentMethod, confirm bool) (*order.Order, error)
	RecordBankReceipt(ctx context.Context, actor user.Actor, orderID int64, bankName, receiptPath string) (*order.Order, error)
}

type BalanceLedger interface {
	HasBalance(ctx context.Context, buyerID int64, amount decimal.Decimal) (bool, error)
	Withdraw(ctx context.Context, buyerID int64, amount decimal.Decimal, reason string, r *ref.Ref, opts ...balance.Option) (*balancetypes.Transaction, error)
}
