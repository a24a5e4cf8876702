package balance

import (
	"context"

	"github.com/antonminaichev/wholesale/internal/types/balance"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
)

type BalanceRepository interface {
	GetCompany(ctx context.Context, userID int64) (*user.Company, error)
	LockCompany(ctx context.Context, userID int64) (*user.Company, error)
	SetCompanyBalance(ctx context.Context, userID int64, amount decimal.Decimal) error
	AppendBalanceTransaction(ctx context.Context, t *balance.Transaction) error
	ListBalanceTransactions(ctx context.Context, userID int64) ([]balance.Transaction, error)
}
