// Package payment collects money for orders by card, bank transfer or prepaid balance.
package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/antonminaichev/wholesale/internal/balance"
	"github.com/antonminaichev/wholesale/internal/events"
	"github.com/antonminaichev/wholesale/internal/filestore"
	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/metrics"
	orders "github.com/antonminaichev/wholesale/internal/order"
	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/payment"
	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrMissingReceipt       = errors.New("bank name and receipt are required")
	ErrInsufficientBalance  = balance.ErrInsufficientBalance
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable, try again")
	ErrInvalidHash          = errors.New("invalid callback hash")
	ErrTransactionNotFound  = errors.New("payment transaction not found")
	ErrNotPayable           = orders.ErrNotPayable
	ErrNotPending           = errors.New("payment transaction is not pending")
	ErrForbidden            = errors.New("admin only")
)

const callbackSuccess = "success"

type Processor struct {
	tx       storage.Transactor
	repo     PaymentRepository
	orders   OrderWorkflow
	balance  BalanceLedger
	gateway  TokenRequester
	cfg      GatewayConfig
	files    filestore.Store
	events   events.Publisher
	now      func() time.Time
	randomID func() string
}

func NewProcessor(tx storage.Transactor, repo PaymentRepository, ow OrderWorkflow, bl BalanceLedger, gw TokenRequester, cfg GatewayConfig, files filestore.Store, pub events.Publisher) *Processor {
	return &Processor{
		tx:      tx,
		repo:    repo,
		orders:  ow,
		balance: bl,
		gateway: gw,
		cfg:     cfg,
		files:   files,
		events:  pub,
		now:     time.Now,
		randomID: func() string {
			return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
		},
	}
}

func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// transactionID is <prefix><YYYYMMDDhhmmss><6 random>.
func (p *Processor) transactionID(prefix string) string {
	return prefix + p.now().UTC().Format("20060102150405") + p.randomID()
}

func minorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// basket is the base64 JSON list of [name, unit price, quantity] the gateway shows the buyer.
func basket(o *order.Order) (string, error) {
	rows := make([][]any, 0, len(o.Items)+1)
	for _, it := range o.Items {
		unit := it.TotalPrice.Div(decimal.NewFromInt(int64(it.Quantity))).StringFixed(2)
		rows = append(rows, []any{it.ProductName, unit, it.Quantity})
	}
	if o.ShippingCost.IsPositive() {
		rows = append(rows, []any{"Shipping", o.ShippingCost.StringFixed(2), 1})
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (p *Processor) emit(ctx context.Context, t events.Type, tr *payment.Transaction, o *order.Order) {
	payload := map[string]any{
		"payment_id":     tr.ID,
		"transaction_id": tr.TransactionID,
		"order_id":       tr.OrderID,
		"method":         string(tr.Method),
		"amount":         tr.Amount.StringFixed(2),
		"status":         string(tr.Status),
	}
	key := tr.TransactionID
	if o != nil {
		payload["order_number"] = o.Number
		key = o.Number
	}
	events.Emit(ctx, p.events, events.New(t, key, payload))
}

func (p *Processor) Process(ctx context.Context, actor user.Actor, req payment.Request) (*payment.Result, error) {
	if !req.Method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	o, err := p.orders.Get(ctx, actor, req.OrderNumber)
	if err != nil {
		return nil, err
	}
	if o.Status == order.StatusCancelled || o.PaymentStatus != order.PaymentPending {
		return nil, fmt.Errorf("%w: status %s, payment %s", ErrNotPayable, o.Status, o.PaymentStatus)
	}

	var res *payment.Result
	switch req.Method {
	case order.MethodCreditCard:
		res, err = p.processCard(ctx, actor, o)
	case order.MethodBankTransfer:
		res, err = p.processBankTransfer(ctx, actor, o, req)
	case order.MethodBalance:
		res, err = p.processBalance(ctx, actor, o)
	}
	if err != nil {
		metrics.RecordPayment(string(req.Method), "error")
		logger.Log.Warn("payment failed",
			zap.String("method", string(req.Method)),
			zap.Int64("order_id", o.ID),
			zap.String("order_number", o.Number),
			zap.Int64("actor_id", actor.ID),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.RecordPayment(string(req.Method), string(res.Transaction.Status))
	return res, nil
}

func (p *Processor) newTransaction(o *order.Order, method order.PaymentMethod, prefix string) *payment.Transaction {
	now := p.now().UTC()
	return &payment.Transaction{
		OrderID:       o.ID,
		TransactionID: p.transactionID(prefix),
		Method:        method,
		Amount:        o.GrandTotal,
		Currency:      payment.CurrencyTRY,
		Status:        payment.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// processCard stores a pending attempt, then asks the gateway for a form token with no transaction open.
func (p *Processor) processCard(ctx context.Context, actor user.Actor, o *order.Order) (*payment.Result, error) {
	buyer, err := p.repo.FindUserByID(ctx, o.UserID)
	if err != nil {
		return nil, fmt.Errorf("find buyer: %w", err)
	}
	b, err := basket(o)
	if err != nil {
		return nil, fmt.Errorf("build basket: %w", err)
	}

	t := p.newTransaction(o, order.MethodCreditCard, "PAY")
	if err := p.repo.CreatePayment(ctx, t); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	form := p.cfg.TokenForm(t.TransactionID, minorUnits(o.GrandTotal), b, Buyer{
		Name:    buyer.Name,
		Email:   buyer.Email,
		Phone:   o.BillingContactPhone,
		Address: o.BillingAddress,
		IP:      actor.IP,
	})
	token, gwErr := p.gateway.RequestToken(ctx, form)

	now := p.now().UTC()
	t.UpdatedAt = now
	if gwErr != nil {
		t.Status = payment.StatusFailed
		t.ErrorMessage = gwErr.Error()
		t.ProcessedAt = &now
		if err := p.repo.UpdatePayment(ctx, t); err != nil {
			logger.Log.Error("mark payment failed", zap.Int64("payment_id", t.ID), zap.Error(err))
		}
		p.emit(ctx, events.PaymentFailed, t, o)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, gwErr)
	}

	t.GatewayResponse = map[string]any{"token": token, "iframe_url": IframeURL(token)}
	if err := p.repo.UpdatePayment(ctx, t); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	return &payment.Result{
		Transaction: t,
		Token:       token,
		IframeURL:   IframeURL(token),
		MerchantOID: t.TransactionID,
	}, nil
}

func (p *Processor) processBankTransfer(ctx context.Context, actor user.Actor, o *order.Order, req payment.Request) (*payment.Result, error) {
	if strings.TrimSpace(req.BankName) == "" || req.BankReceipt == "" {
		return nil, ErrMissingReceipt
	}
	data, err := base64.StdEncoding.DecodeString(req.BankReceipt)
	if err != nil || len(data) == 0 {
		return nil, ErrMissingReceipt
	}

	t := p.newTransaction(o, order.MethodBankTransfer, "BNK")
	t.BankName = req.BankName
	name := req.BankReceiptName
	if name == "" {
		name = "receipt"
	}
	path, err := p.files.Save(ctx, "receipts", t.TransactionID+"_"+name, data)
	if err != nil {
		return nil, fmt.Errorf("store receipt: %w", err)
	}
	t.BankReceipt = path

	base := ctx
	ctx, batch := events.Defer(ctx)
	err = p.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := p.repo.CreatePayment(ctx, t); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		_, err := p.orders.RecordBankReceipt(ctx, actor, o.ID, req.BankName, path)
		return err
	})
	if err != nil {
		if rerr := p.files.Remove(context.WithoutCancel(base), path); rerr != nil {
			logger.Log.Warn("orphaned bank receipt", zap.String("path", path), zap.Error(rerr))
		}
		return nil, err
	}
	batch.Flush(base, p.events)
	return &payment.Result{Transaction: t, Message: "receipt received, awaiting approval"}, nil
}

// processBalance withdraws the grand total and marks the order paid in one transaction.
// The order is not confirmed here.
func (p *Processor) processBalance(ctx context.Context, actor user.Actor, o *order.Order) (*payment.Result, error) {
	ok, err := p.balance.HasBalance(ctx, o.UserID, o.GrandTotal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInsufficientBalance
	}

	t := p.newTransaction(o, order.MethodBalance, "BAL")
	base := ctx
	ctx, batch := events.Defer(ctx)
	err = p.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := p.repo.CreatePayment(ctx, t); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		if _, err := p.balance.Withdraw(ctx, o.UserID, o.GrandTotal, "payment for order "+o.Number, ref.Order(o.ID), balance.WithActor(actor)); err != nil {
			return err
		}
		now := p.now().UTC()
		t.Status = payment.StatusSuccess
		t.ProcessedAt = &now
		t.UpdatedAt = now
		if err := p.repo.UpdatePayment(ctx, t); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		_, err := p.orders.MarkPaid(ctx, actor, o.ID, order.MethodBalance, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	batch.Flush(base, p.events)
	p.emit(base, events.PaymentReceived, t, o)
	return &payment.Result{Transaction: t, Message: "paid from balance"}, nil
}

// HandleCallback applies the gateway's asynchronous result. Replays of a settled attempt are no-ops.
func (p *Processor) HandleCallback(ctx context.Context, cb payment.Callback) error {
	if !p.cfg.VerifyCallback(cb) {
		metrics.RecordPayment(string(order.MethodCreditCard), "invalid_hash")
		logger.Log.Warn("payment callback with invalid hash",
			zap.String("merchant_oid", cb.MerchantOID),
			zap.String("status", cb.Status),
			zap.String("total_amount", cb.TotalAmount),
		)
		return ErrInvalidHash
	}

	base := ctx
	ctx, batch := events.Defer(ctx)
	var t *payment.Transaction
	replay := false
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = p.repo.LockPaymentByTransactionID(ctx, cb.MerchantOID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if t.Settled() {
			replay = true
			return nil
		}

		now := p.now().UTC()
		t.ProcessedAt = &now
		t.UpdatedAt = now
		resp := maps.Clone(t.GatewayResponse)
		if resp == nil {
			resp = map[string]any{}
		}
		resp["callback_status"] = cb.Status
		resp["total_amount"] = cb.TotalAmount
		t.GatewayResponse = resp

		if cb.Status != callbackSuccess {
			t.Status = payment.StatusFailed
			t.ErrorMessage = cb.FailedReasonMsg
			return p.repo.UpdatePayment(ctx, t)
		}

		t.MaskedCardNumber = cb.MaskedPAN
		t.CardHolderName = cb.CardHolderName
		_, err = p.orders.MarkPaid(ctx, user.System, t.OrderID, order.MethodCreditCard, true)
		switch {
		case errors.Is(err, ErrNotPayable):
			// charged, but the order was cancelled or already paid: keep the attempt for a manual refund
			t.Status = payment.StatusCancelled
			t.ErrorMessage = "order not payable, refund required"
			logger.Log.Warn("card charged for an order that is not payable",
				zap.Int64("order_id", t.OrderID),
				zap.String("merchant_oid", t.TransactionID),
			)
		case err != nil:
			return err
		default:
			t.Status = payment.StatusSuccess
		}
		return p.repo.UpdatePayment(ctx, t)
	})
	if err != nil {
		logger.Log.Warn("payment callback failed", zap.String("merchant_oid", cb.MerchantOID), zap.Error(err))
		return err
	}
	if replay {
		return nil
	}
	batch.Flush(base, p.events)
	metrics.RecordPayment(string(order.MethodCreditCard), string(t.Status))
	if t.Status == payment.StatusSuccess {
		p.emit(base, events.PaymentReceived, t, nil)
	} else {
		p.emit(base, events.PaymentFailed, t, nil)
	}
	return nil
}

func (p *Processor) lockPending(ctx context.Context, paymentID int64) (*payment.Transaction, error) {
	t, err := p.repo.LockPayment(ctx, paymentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Method != order.MethodBankTransfer || t.Status != payment.StatusPending {
		return nil, ErrNotPending
	}
	return t, nil
}

func (p *Processor) ApproveBankTransfer(ctx context.Context, actor user.Actor, paymentID int64) (*payment.Transaction, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	base := ctx
	ctx, batch := events.Defer(ctx)
	var t *payment.Transaction
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if t, err = p.lockPending(ctx, paymentID); err != nil {
			return err
		}
		now := p.now().UTC()
		t.Status = payment.StatusSuccess
		t.ProcessedAt = &now
		t.UpdatedAt = now
		if err := p.repo.UpdatePayment(ctx, t); err != nil {
			return err
		}
		_, err = p.orders.MarkPaid(ctx, actor, t.OrderID, order.MethodBankTransfer, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	batch.Flush(base, p.events)
	metrics.RecordPayment(string(order.MethodBankTransfer), string(t.Status))
	p.emit(base, events.PaymentReceived, t, nil)
	return t, nil
}

func (p *Processor) RejectBankTransfer(ctx context.Context, actor user.Actor, paymentID int64, reason string) (*payment.Transaction, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	var t *payment.Transaction
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if t, err = p.lockPending(ctx, paymentID); err != nil {
			return err
		}
		now := p.now().UTC()
		t.Status = payment.StatusFailed
		t.ErrorMessage = reason
		t.ProcessedAt = &now
		t.UpdatedAt = now
		return p.repo.UpdatePayment(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPayment(string(order.MethodBankTransfer), string(t.Status))
	p.emit(ctx, events.PaymentFailed, t, nil)
	return t, nil
}
