// Package stock keeps product quantities and their append-only movement ledger.
package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/metrics"
	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/antonminaichev/wholesale/internal/types/stock"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrProductNotFound   = errors.New("product not found")
)

type Ledger struct {
	tx   storage.Transactor
	repo StockRepository
	now  func() time.Time
}

func NewLedger(tx storage.Transactor, repo StockRepository) *Ledger {
	return &Ledger{tx: tx, repo: repo, now: time.Now}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

type change struct {
	op        string
	kind      stock.MovementType
	qty       int
	absolute  bool // qty is the target level, not a delta
	reference *ref.Ref
	reason    string
	unitCost  *decimal.Decimal
	actor     user.Actor
}

// apply locks the product row, validates the change, writes the new level and
// appends exactly one movement, all in one transaction.
func (l *Ledger) apply(ctx context.Context, productID int64, c change) (*stock.Movement, error) {
	var m *stock.Movement
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := l.repo.LockProduct(ctx, productID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}

		delta := c.qty
		if c.absolute {
			delta = c.qty - p.StockQuantity
		}
		after := p.StockQuantity + delta
		if after < 0 {
			return ErrInsufficientStock
		}
		if err := l.repo.SetProductStock(ctx, p.ID, after); err != nil {
			return fmt.Errorf("set stock: %w", err)
		}
		m = &stock.Movement{
			ProductID:   p.ID,
			Type:        c.kind,
			Quantity:    delta,
			StockBefore: p.StockQuantity,
			StockAfter:  after,
			Reference:   c.reference,
			Description: c.reason,
			UnitCost:    c.unitCost,
			CreatedBy:   c.actor.CreatedBy(),
			IPAddress:   c.actor.IP,
			CreatedAt:   l.now().UTC(),
		}
		if err := l.repo.AppendStockMovement(ctx, m); err != nil {
			return fmt.Errorf("append movement: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			metrics.RecordLedgerRejection("stock", c.op)
		}
		logger.Log.Warn("stock operation failed",
			zap.String("op", c.op),
			zap.Int64("product_id", productID),
			zap.Int("quantity", c.qty),
			zap.String("ref", c.reference.String()),
			zap.Int64("actor_id", c.actor.ID),
			zap.Error(err),
		)
		return nil, err
	}
	return m, nil
}

// Reserve decrements stock for an order line. There is no separate hold: Release must undo it.
func (l *Ledger) Reserve(ctx context.Context, productID int64, qty int, orderID int64) (*stock.Movement, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	return l.apply(ctx, productID, change{
		op: "reserve", kind: stock.MovementReserved, qty: -qty,
		reference: ref.Order(orderID), reason: "reserved for order", actor: user.System,
	})
}

func (l *Ledger) Release(ctx context.Context, productID int64, qty int, orderID int64) (*stock.Movement, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	return l.apply(ctx, productID, change{
		op: "release", kind: stock.MovementCancelled, qty: qty,
		reference: ref.Order(orderID), reason: "reservation released", actor: user.System,
	})
}

func (l *Ledger) CommitOut(ctx context.Context, productID int64, qty int, reason string, r *ref.Ref, actor user.Actor) (*stock.Movement, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	return l.apply(ctx, productID, change{
		op: "out", kind: stock.MovementOut, qty: -qty, reference: r, reason: reason, actor: actor,
	})
}

func (l *Ledger) CommitIn(ctx context.Context, productID int64, qty int, reason string, unitCost *decimal.Decimal, actor user.Actor) (*stock.Movement, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	return l.apply(ctx, productID, change{
		op: "in", kind: stock.MovementIn, qty: qty, reason: reason, unitCost: unitCost, actor: actor,
	})
}

func (l *Ledger) Adjust(ctx context.Context, productID int64, newQty int, reason string, actor user.Actor) (*stock.Movement, error) {
	if newQty < 0 {
		return nil, ErrInvalidQuantity
	}
	return l.apply(ctx, productID, change{
		op: "adjust", kind: stock.MovementAdjustment, qty: newQty, absolute: true, reason: reason, actor: actor,
	})
}

func (l *Ledger) Movements(ctx context.Context, productID int64) ([]stock.Movement, error) {
	if _, err := l.repo.GetProduct(ctx, productID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return l.repo.ListStockMovements(ctx, productID)
}

func (l *Ledger) LowStock(ctx context.Context, threshold int) ([]product.Product, error) {
	return l.repo.ListLowStockProducts(ctx, threshold)
}

type AuditReport struct {
	ProductID  int64  `json:"product_id"`
	Current    int    `json:"current"`
	Movements  int    `json:"movements"`
	Consistent bool   `json:"consistent"`
	Problem    string `json:"problem,omitempty"`
}

func (l *Ledger) Audit(ctx context.Context, productID int64) (*AuditReport, error) {
	p, err := l.repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	ms, err := l.repo.ListStockMovements(ctx, productID)
	if err != nil {
		return nil, err
	}
	rep := &AuditReport{ProductID: p.ID, Current: p.StockQuantity, Movements: len(ms), Consistent: true}
	if err := Verify(ms, p.StockQuantity); err != nil {
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
	return fmt.Sprintf("movement %d: %s", e.Index, e.Reason)
}

// Verify checks after = before + quantity for every movement, that each movement
// starts where the previous one ended, and that the last one ends at current.
// An empty chain is consistent with any level, since stock may predate the ledger.
func Verify(ms []stock.Movement, current int) error {
	for i, m := range ms {
		if m.StockAfter != m.StockBefore+m.Quantity {
			return &ChainError{Index: i, Reason: fmt.Sprintf("after %d != before %d + quantity %d", m.StockAfter, m.StockBefore, m.Quantity)}
		}
		if i > 0 && m.StockBefore != ms[i-1].StockAfter {
			return &ChainError{Index: i, Reason: fmt.Sprintf("before %d != previous after %d", m.StockBefore, ms[i-1].StockAfter)}
		}
	}
	if n := len(ms); n > 0 && ms[n-1].StockAfter != current {
		return &ChainError{Index: n - 1, Reason: fmt.Sprintf("last after %d != current %d", ms[n-1].StockAfter, current)}
	}
	return nil
}
