package balance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/antonminaichev/wholesale/internal/storage/memory"
	"github.com/antonminaichev/wholesale/internal/types/balance"
	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setupLedger(t *testing.T, initial string) (*Ledger, *memory.Store, int64) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	u := &user.User{Email: "buyer@example.com", Name: "Buyer", IsActive: true}
	require.NoError(t, store.CreateUser(ctx, u))
	require.NoError(t, store.CreateCompany(ctx, &user.Company{UserID: u.ID, Name: "Acme", Balance: dec(initial)}))
	return NewLedger(store, store), store, u.ID
}

func TestDepositAndWithdraw(t *testing.T) {
	ctx := context.Background()
	l, _, id := setupLedger(t, "0")
	admin := user.Actor{ID: 9, Admin: true, IP: "10.0.0.2", UserAgent: "curl"}

	tx, err := l.Deposit(ctx, id, dec("100.50"), "wire", admin)
	require.NoError(t, err)
	assert.Equal(t, balance.TypeDeposit, tx.Type)
	assert.True(t, tx.BalanceAfter.Equal(dec("100.50")))
	require.NotNil(t, tx.CreatedBy)
	assert.Equal(t, int64(9), *tx.CreatedBy)
	assert.Equal(t, "10.0.0.2", tx.IPAddress)

	tx, err = l.Withdraw(ctx, id, dec("40"), "order", ref.Order(3))
	require.NoError(t, err)
	assert.Equal(t, balance.TypeOrderPayment, tx.Type)
	assert.True(t, tx.Amount.Equal(dec("-40")))
	assert.Nil(t, tx.CreatedBy)

	tx, err = l.Withdraw(ctx, id, dec("10"), "cash out", nil)
	require.NoError(t, err)
	assert.Equal(t, balance.TypeWithdraw, tx.Type)

	b, err := l.Balance(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Equal(dec("50.50")))

	rep, err := l.Audit(ctx, id)
	require.NoError(t, err)
	assert.True(t, rep.Consistent)
	assert.Equal(t, 3, rep.Transactions)
}

func TestWithdrawInsufficientWritesNothing(t *testing.T) {
	ctx := context.Background()
	l, store, id := setupLedger(t, "20")

	_, err := l.Withdraw(ctx, id, dec("20.01"), "order", ref.Order(1))
	assert.True(t, errors.Is(err, ErrInsufficientBalance))

	c, _ := store.GetCompany(ctx, id)
	assert.True(t, c.Balance.Equal(dec("20")))
	ts, _ := store.ListBalanceTransactions(ctx, id)
	assert.Empty(t, ts)
}

func TestInvalidAmounts(t *testing.T) {
	l, _, id := setupLedger(t, "5")
	_, err := l.Deposit(context.Background(), id, decimal.Zero, "x", user.System)
	assert.Equal(t, ErrInvalidAmount, err)
	_, err = l.Withdraw(context.Background(), id, dec("-1"), "x", nil)
	assert.Equal(t, ErrInvalidAmount, err)
	_, err = l.SetAbsolute(context.Background(), id, dec("-1"), "x", user.System)
	assert.Equal(t, ErrInvalidAmount, err)
}

func TestSubCentAmountsRejected(t *testing.T) {
	l, store, id := setupLedger(t, "5")
	ctx := context.Background()

	_, err := l.Deposit(ctx, id, dec("10.005"), "x", user.System)
	assert.Equal(t, ErrInvalidAmount, err)
	_, err = l.Withdraw(ctx, id, dec("0.001"), "x", nil)
	assert.Equal(t, ErrInvalidAmount, err)
	_, err = l.SetAbsolute(ctx, id, dec("7.125"), "x", user.System)
	assert.Equal(t, ErrInvalidAmount, err)

	_, err = l.Deposit(ctx, id, dec("10.50"), "x", user.System)
	assert.NoError(t, err)
	b, _ := l.Balance(ctx, id)
	assert.True(t, dec("15.50").Equal(b))
	ts, _ := store.ListBalanceTransactions(ctx, id)
	assert.Len(t, ts, 1)
}

func TestUnknownBuyer(t *testing.T) {
	l, _, _ := setupLedger(t, "5")
	_, err := l.Deposit(context.Background(), 404, dec("1"), "x", user.System)
	assert.True(t, errors.Is(err, ErrBuyerNotFound))
	_, err = l.Balance(context.Background(), 404)
	assert.True(t, errors.Is(err, ErrBuyerNotFound))
}

func TestRefundAndSetAbsolute(t *testing.T) {
	ctx := context.Background()
	l, _, id := setupLedger(t, "10")

	tx, err := l.Refund(ctx, id, dec("15"), "order cancelled", ref.Order(8), user.System)
	require.NoError(t, err)
	assert.Equal(t, balance.TypeRefund, tx.Type)
	assert.Equal(t, ref.Order(8), tx.Reference)

	tx, err = l.SetAbsolute(ctx, id, dec("3"), "reconciliation", user.Actor{ID: 2, Admin: true})
	require.NoError(t, err)
	assert.Equal(t, balance.TypeManualAdjustment, tx.Type)
	assert.True(t, tx.Amount.Equal(dec("-22")))
	assert.Equal(t, "reconciliation", tx.AdjustmentReason)

	ok, err := l.HasBalance(ctx, id, dec("3"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = l.HasBalance(ctx, id, dec("3.01"))
	assert.False(t, ok)
}

func TestConcurrentWithdrawNeverNegative(t *testing.T) {
	ctx := context.Background()
	l, store, id := setupLedger(t, "100")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Withdraw(ctx, id, dec("15"), "order", nil); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, succeeded)
	c, _ := store.GetCompany(ctx, id)
	assert.True(t, c.Balance.Equal(dec("10")))
}

func TestVerify(t *testing.T) {
	good := []balance.Transaction{
		{Amount: dec("10"), BalanceBefore: dec("0"), BalanceAfter: dec("10")},
		{Amount: dec("-4"), BalanceBefore: dec("10"), BalanceAfter: dec("6")},
	}
	assert.NoError(t, Verify(good, dec("6")))
	assert.NoError(t, Verify(nil, dec("42")))

	var ce *ChainError
	err := Verify(good, dec("7"))
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Index)

	broken := []balance.Transaction{
		{Amount: dec("10"), BalanceBefore: dec("0"), BalanceAfter: dec("10")},
		{Amount: dec("-4"), BalanceBefore: dec("9"), BalanceAfter: dec("5")},
	}
	require.True(t, errors.As(Verify(broken, dec("5")), &ce))
	assert.Equal(t, 1, ce.Index)

	wrongSum := []balance.Transaction{{Amount: dec("10"), BalanceBefore: dec("0"), BalanceAfter: dec("11")}}
	require.True(t, errors.As(Verify(wrongSum, dec("11")), &ce))
	assert.Equal(t, 0, ce.Index)
}
