// Package balance keeps the buyer prepaid balance and its append-only transaction log.
package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/metrics"
	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/types/balance"
	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive with at most two decimals")
	ErrBuyerNotFound       = errors.New("buyer not found")
)

type Ledger struct {
	tx   storage.Transactor
	repo BalanceRepository
	now  func() time.Time
}

func NewLedger(tx storage.Transactor, repo BalanceRepository) *Ledger {
	return &Ledger{tx: tx, repo: repo, now: time.Now}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

type entry struct {
	op        string
	kind      balance.TransactionType
	amount    decimal.Decimal
	absolute  bool
	reference *ref.Ref
	reason    string
	adjust    string
	actor     user.Actor
}

type Option func(*entry)

func WithType(t balance.TransactionType) Option {
	return func(e *entry) { e.kind = t }
}

func WithRef(r *ref.Ref) Option {
	return func(e *entry) { e.reference = r }
}

func WithActor(a user.Actor) Option {
	return func(e *entry) { e.actor = a }
}

func (l *Ledger) apply(ctx context.Context, buyerID int64, e entry) (*balance.Transaction, error) {
	var t *balance.Transaction
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := l.repo.LockCompany(ctx, buyerID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrBuyerNotFound
		}
		if err != nil {
			return fmt.Errorf("lock company: %w", err)
		}

		delta := e.amount
		if e.absolute {
			delta = e.amount.Sub(c.Balance)
		}
		after := c.Balance.Add(delta)
		if after.IsNegative() {
			return ErrInsufficientBalance
		}
		if err := l.repo.SetCompanyBalance(ctx, buyerID, after); err != nil {
			return fmt.Errorf("set balance: %w", err)
		}
		t = &balance.Transaction{
			UserID:           buyerID,
			Type:             e.kind,
			Amount:           delta,
			BalanceBefore:    c.Balance,
			BalanceAfter:     after,
			Reference:        e.reference,
			Description:      e.reason,
			AdjustmentReason: e.adjust,
			CreatedBy:        e.actor.CreatedBy(),
			IPAddress:        e.actor.IP,
			UserAgent:        e.actor.UserAgent,
			CreatedAt:        l.now().UTC(),
		}
		if err := l.repo.AppendBalanceTransaction(ctx, t); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			metrics.RecordLedgerRejection("balance", e.op)
		}
		logger.Log.Warn("balance operation failed",
			zap.String("op", e.op),
			zap.Int64("buyer_id", buyerID),
			zap.String("amount", e.amount.StringFixed(2)),
			zap.String("ref", e.reference.String()),
			zap.Int64("actor_id", e.actor.ID),
			zap.Error(err),
		)
		return nil, err
	}
	return t, nil
}

func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func (l *Ledger) Deposit(ctx context.Context, buyerID int64, amount decimal.Decimal, reason string, actor user.Actor, opts ...Option) (*balance.Transaction, error) {
	if !amount.IsPositive() || !isCents(amount) {
		return nil, ErrInvalidAmount
	}
	e := entry{op: "deposit", kind: balance.TypeDeposit, amount: amount, reason: reason, actor: actor}
	for _, o := range opts {
		o(&e)
	}
	return l.apply(ctx, buyerID, e)
}

// Withdraw debits amount. A withdrawal referencing an order is recorded as order_payment.
// Nothing is written when the balance is short.
func (l *Ledger) Withdraw(ctx context.Context, buyerID int64, amount decimal.Decimal, reason string, r *ref.Ref, opts ...Option) (*balance.Transaction, error) {
	if !amount.IsPositive() || !isCents(amount) {
		return nil, ErrInvalidAmount
	}
	e := entry{op: "withdraw", kind: balance.TypeWithdraw, amount: amount.Neg(), reference: r, reason: reason, actor: user.System}
	if r.Is(ref.KindOrder) {
		e.kind = balance.TypeOrderPayment
	}
	for _, o := range opts {
		o(&e)
	}
	return l.apply(ctx, buyerID, e)
}

func (l *Ledger) Refund(ctx context.Context, buyerID int64, amount decimal.Decimal, reason string, r *ref.Ref, actor user.Actor) (*balance.Transaction, error) {
	return l.Deposit(ctx, buyerID, amount, reason, actor, WithType(balance.TypeRefund), WithRef(r))
}

func (l *Ledger) SetAbsolute(ctx context.Context, buyerID int64, newBalance decimal.Decimal, reason string, actor user.Actor) (*balance.Transaction, error) {
	if newBalance.IsNegative() || !isCents(newBalance) {
		return nil, ErrInvalidAmount
	}
	return l.apply(ctx, buyerID, entry{
		op: "adjust", kind: balance.TypeManualAdjustment, amount: newBalance, absolute: true,
		reason: "manual balance adjustment", adjust: reason, actor: actor,
	})
}

func (l *Ledger) Balance(ctx context.Context, buyerID int64) (decimal.Decimal, error) {
	c, err := l.repo.GetCompany(ctx, buyerID)
	if errors.Is(err, storage.ErrNotFound) {
		return decimal.Zero, ErrBuyerNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return c.Balance, nil
}

// HasBalance is an unlocked pre-check. Withdraw re-checks under the row lock.
func (l *Ledger) HasBalance(ctx context.Context, buyerID int64, amount decimal.Decimal) (bool, error) {
	b, err := l.Balance(ctx, buyerID)
	if err != nil {
		return false, err
	}
	return b.GreaterThanOrEqual(amount), nil
}

func (l *Ledger) Transactions(ctx context.Context, buyerID int64) ([]balance.Transaction, error) {
	if _, err := l.Balance(ctx, buyerID); err != nil {
		return nil, err
	}
	return l.repo.ListBalanceTransactions(ctx, buyerID)
}

type AuditReport struct {
	BuyerID      int64           `json:"buyer_id"`
	Current      decimal.Decimal `json:"current"`
	Transactions int             `json:"transactions"`
	Consistent   bool            `json:"consistent"`
	Problem      string          `json:"problem,omitempty"`
}

func (l *Ledger) Audit(ctx context.Context, buyerID int64) (*AuditReport, error) {
	current, err := l.Balance(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	ts, err := l.repo.ListBalanceTransactions(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	rep := &AuditReport{BuyerID: buyerID, Current: current, Transactions: len(ts), Consistent: true}
	if err := Verify(ts, current); err != nil {
		rep.Consistent = false
		rep.Problem = err.Error()
	}
	return rep, nil
}

type ChainError struct {
	Index  int
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("transaction %d: %s", e.Index, e.Reason)
}

// Verify replays the transaction chain in order and checks it ends at current.
func Verify(ts []balance.Transaction, current decimal.Decimal) error {
	for i, t := range ts {
		if !t.BalanceAfter.Equal(t.BalanceBefore.Add(t.Amount)) {
			return &ChainError{Index: i, Reason: fmt.Sprintf("after %s != before %s + amount %s", t.BalanceAfter, t.BalanceBefore, t.Amount)}
		}
		if i > 0 && !t.BalanceBefore.Equal(ts[i-1].BalanceAfter) {
			return &ChainError{Index: i, Reason: fmt.Sprintf("before %s != previous after %s", t.BalanceBefore, ts[i-1].BalanceAfter)}
		}
	}
	if n := len(ts); n > 0 && !ts[n-1].BalanceAfter.Equal(current) {
		return &ChainError{Index: n - 1, Reason: fmt.Sprintf("last after %s != current %s", ts[n-1].BalanceAfter, current)}
	}
	return nil
}
