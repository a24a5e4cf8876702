// Package order runs the order state machine and keeps stock, balance and the audit log in step with it.
package order

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/antonminaichev/wholesale/internal/events"
	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/metrics"
	"github.com/antonminaichev/wholesale/internal/stock"
	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/payment"
	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/antonminaichev/wholesale/internal/types/shipment"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"go.uber.org/zap"
)

var (
	ErrEmptyOrder           = errors.New("order has no items")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidOrderType     = errors.New("invalid order or delivery type")
	ErrMissingShipping      = errors.New("shipping address and contact are required")
	ErrProductUnavailable   = errors.New("product unavailable")
	ErrBelowMinimumQuantity = errors.New("quantity below product minimum")
	ErrInsufficientStock    = stock.ErrInsufficientStock
	ErrNoCompany            = errors.New("buyer has no company profile")
	ErrIllegalTransition    = errors.New("illegal order status transition")
	ErrNotPayable           = errors.New("order cannot be paid")
	ErrNotShippable         = errors.New("order cannot be shipped")
	ErrOrderNotFound        = errors.New("order not found")
	ErrForbidden            = errors.New("operation not permitted")
)

const (
	paymentTimeoutReason = "payment timeout"
	defaultCancelReason  = "cancelled by request"
)

type Service struct {
	tx      storage.Transactor
	repo    OrderRepository
	prices  PriceResolver
	stock   StockReserver
	balance BalanceRefunder
	cart    Cart
	events  events.Publisher
	prefix  string
	now     func() time.Time
}

func NewService(tx storage.Transactor, repo OrderRepository, prices PriceResolver, stock StockReserver, balance BalanceRefunder, pub events.Publisher, prefix string) *Service {
	return &Service{
		tx:      tx,
		repo:    repo,
		prices:  prices,
		stock:   stock,
		balance: balance,
		events:  pub,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithCart(c Cart) *Service {
	s.cart = c
	return s
}

type Detail struct {
	*order.Order
	Logs     []order.Log           `json:"logs,omitempty"`
	Payments []payment.Transaction `json:"payments,omitempty"`
	Shipment *shipment.Shipment    `json:"shipment,omitempty"`
}

func (s *Service) record(ctx context.Context, o *order.Order, actor user.Actor, action order.LogAction, desc string, oldV, newV map[string]any) error {
	l := &order.Log{
		OrderID:     o.ID,
		UserID:      actor.CreatedBy(),
		Action:      action,
		Description: desc,
		OldValue:    oldV,
		NewValue:    newV,
		IPAddress:   actor.IP,
		UserAgent:   actor.UserAgent,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.AppendOrderLog(ctx, l); err != nil {
		return fmt.Errorf("append order log: %w", err)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, o *order.Order, to order.OrderStatus, actor user.Actor, action order.LogAction, desc string) error {
	if !order.CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, to)
	}
	from := o.Status
	o.Status = to
	o.UpdatedAt = s.now().UTC()
	return s.record(ctx, o, actor, action, desc,
		map[string]any{"status": string(from)},
		map[string]any{"status": string(to)})
}

func (s *Service) setPaymentStatus(ctx context.Context, o *order.Order, to order.PaymentStatus, actor user.Actor, action order.LogAction, desc string) error {
	from := o.PaymentStatus
	o.PaymentStatus = to
	o.UpdatedAt = s.now().UTC()
	newV := map[string]any{"payment_status": string(to)}
	if o.PaymentMethod != nil {
		newV["payment_method"] = string(*o.PaymentMethod)
	}
	return s.record(ctx, o, actor, action, desc, map[string]any{"payment_status": string(from)}, newV)
}

func (s *Service) appendNote(o *order.Order, actor user.Actor, note string) {
	name := actor.Name
	if name == "" {
		name = "system"
	}
	line := fmt.Sprintf("[%s] %s: %s", s.now().Format("02.01.2006 15:04"), name, note)
	if o.InternalNotes == "" {
		o.InternalNotes = line
		return
	}
	o.InternalNotes += "\n" + line
}

// visible hides other buyers' orders behind ErrOrderNotFound.
func visible(o *order.Order, actor user.Actor) bool {
	return actor.Admin || o.UserID == actor.ID
}

func (s *Service) lockVisible(ctx context.Context, actor user.Actor, orderID int64) (*order.Order, error) {
	o, err := s.repo.LockOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if !visible(o, actor) {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) emit(ctx context.Context, t events.Type, o *order.Order, extra map[string]any) {
	payload := map[string]any{
		"order_id":       o.ID,
		"order_number":   o.Number,
		"user_id":        o.UserID,
		"status":         string(o.Status),
		"payment_status": string(o.PaymentStatus),
		"grand_total":    o.GrandTotal.StringFixed(2),
	}
	for k, v := range extra {
		payload[k] = v
	}
	events.Emit(ctx, s.events, events.New(t, o.Number, payload))
}

func (s *Service) finish(op string, o *order.Order, actor user.Actor) {
	metrics.RecordOrderOperation(op, true)
	logger.Log.Info("order "+op,
		zap.Int64("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("status", string(o.Status)),
		zap.Int64("actor_id", actor.ID),
	)
}

func (s *Service) fail(op string, orderID int64, actor user.Actor, err error) {
	metrics.RecordOrderOperation(op, false)
	logger.Log.Warn("order "+op+" failed",
		zap.Int64("order_id", orderID),
		zap.Int64("actor_id", actor.ID),
		zap.Error(err),
	)
}

// byProduct returns a copy of items ordered by product id, the order product rows are locked in.
func byProduct(items []order.Item) []order.Item {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b order.Item) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return out
}

// Create prices and reserves every line and stores the order in one transaction.
// Any failing line rolls back the reservations already made.
func (s *Service) Create(ctx context.Context, actor user.Actor, req order.CreateRequest) (*order.Order, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}
	if req.OrderType == "" {
		req.OrderType = order.TypeCargo
	}
	if req.DeliveryType == "" {
		req.DeliveryType = order.DeliveryStandard
	}
	shippingCost, ok := req.DeliveryType.ShippingCost()
	if !ok || !req.OrderType.Valid() {
		return nil, ErrInvalidOrderType
	}
	if req.UseDifferentShipping && (strings.TrimSpace(req.ShippingAddress) == "" || strings.TrimSpace(req.ShippingContactName) == "") {
		return nil, ErrMissingShipping
	}

	var o *order.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		buyer, err := s.repo.FindUserByID(ctx, actor.ID)
		if err != nil {
			return fmt.Errorf("find buyer: %w", err)
		}
		company, err := s.repo.GetCompany(ctx, actor.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoCompany
		}
		if err != nil {
			return fmt.Errorf("get company: %w", err)
		}

		now := s.now().UTC()
		seq, err := s.repo.NextOrderSequence(ctx, now)
		if err != nil {
			return fmt.Errorf("order sequence: %w", err)
		}
		o = &order.Order{
			Number:               fmt.Sprintf("%s%s%04d", s.prefix, now.Format("20060102"), seq),
			UserID:               actor.ID,
			OrderType:            req.OrderType,
			DeliveryType:         req.DeliveryType,
			Status:               order.StatusPending,
			PaymentStatus:        order.PaymentPending,
			ShippingCost:         shippingCost,
			BillingAddress:       company.FullAddress(),
			BillingContactName:   buyer.Name,
			BillingContactPhone:  buyer.Phone,
			ShippingAddress:      company.FullAddress(),
			ShippingContactName:  buyer.Name,
			ShippingContactPhone: buyer.Phone,
			UseDifferentShipping: req.UseDifferentShipping,
			IsDropshipping:       req.IsDropshipping || req.OrderType == order.TypeDropshipping,
			Notes:                req.Notes,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if req.UseDifferentShipping {
			o.ShippingAddress = req.ShippingAddress
			o.ShippingContactName = req.ShippingContactName
			o.ShippingContactPhone = req.ShippingContactPhone
		}
		if err := s.repo.CreateOrder(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		items := make([]order.Item, 0, len(req.Lines))
		for _, line := range req.Lines {
			p, err := s.repo.GetProduct(ctx, line.ProductID)
			if errors.Is(err, storage.ErrNotFound) || (err == nil && !p.IsActive) {
				return fmt.Errorf("%w: product %d", ErrProductUnavailable, line.ProductID)
			}
			if err != nil {
				return fmt.Errorf("get product: %w", err)
			}
			if line.Quantity < p.MinOrderQuantity {
				return fmt.Errorf("%w: product %d needs at least %d", ErrBelowMinimumQuantity, p.ID, p.MinOrderQuantity)
			}
			price, err := s.prices.Resolve(ctx, actor.ID, p, line.Quantity)
			if err != nil {
				return fmt.Errorf("resolve price: %w", err)
			}
			items = append(items, order.Item{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    line.Quantity,
				UnitPrice:   price.Unit,
				VATRate:     p.VATRate,
			})
		}
		for _, it := range byProduct(items) {
			if _, err := s.stock.Reserve(ctx, it.ProductID, it.Quantity, o.ID); err != nil {
				return fmt.Errorf("reserve product %d: %w", it.ProductID, err)
			}
		}
		o.Items = items
		o.CalculateTotals()
		if err := s.repo.CreateOrderItems(ctx, o.ID, o.Items); err != nil {
			return fmt.Errorf("create items: %w", err)
		}
		if err := s.repo.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update totals: %w", err)
		}
		return s.record(ctx, o, actor, order.LogCreated, "order created", nil,
			map[string]any{"status": string(o.Status), "grand_total": o.GrandTotal.StringFixed(2)})
	})
	if err != nil {
		s.fail("create", 0, actor, err)
		return nil, err
	}
	s.finish("create", o, actor)
	s.emit(ctx, events.OrderCreated, o, map[string]any{"items": o.ItemCount()})
	return o, nil
}

func (s *Service) Confirm(ctx context.Context, actor user.Actor, orderID int64) (*order.Order, error) {
	var o *order.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockVisible(ctx, actor, orderID); err != nil {
			return err
		}
		if !actor.Admin && o.PaymentStatus != order.PaymentPaid {
			return ErrForbidden
		}
		if err := s.transition(ctx, o, order.StatusConfirmed, actor, order.LogStatusChanged, "order confirmed"); err != nil {
			return err
		}
		return s.repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		s.fail("confirm", orderID, actor, err)
		return nil, err
	}
	s.finish("confirm", o, actor)
	s.emit(ctx, events.OrderConfirmed, o, nil)
	return o, nil
}

func (s *Service) MarkProcessing(ctx context.Context, actor user.Actor, orderID int64) (*order.Order, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	var o *order.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockVisible(ctx, actor, orderID); err != nil {
			return err
		}
		if err := s.transition(ctx, o, order.StatusProcessing, actor, order.LogStatusChanged, "order is being prepared"); err != nil {
			return err
		}
		return s.repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		s.fail("processing", orderID, actor, err)
		return nil, err
	}
	s.finish("processing", o, actor)
	return o, nil
}

// MarkShipped is called by the shipment tracker inside its own transaction.
func (s *Service) MarkShipped(ctx context.Context, actor user.Actor, orderID int64, trackingNumber string) (*order.Order, error) {
	var o *order.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockVisible(ctx, actor, orderID); err != nil {
			return err
		}
		if !o.CanBeShipped() {
			return fmt.Errorf("%w: status %s, payment %s", ErrNotShippable, o.Status, o.PaymentStatus)
		}
		if err := s.transition(ctx, o, order.StatusShipped, actor, order.LogShipped, "shipped, tracking "+trackingNumber); err != nil {
			return err
		}
		at := s.now().UTC()
		o.ShippedAt = &at
		return s.repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		s.fail("ship", orderID, actor, err)
		return nil, err
	}
	s.finish("ship", o, actor)
	s.emit(ctx, events.OrderShipped, o, map[string]any{"tracking_number": trackingNumber})
	return o, nil
}

// MarkDelivered is a no-op for an order that is already delivered.
func (s *Service) MarkDelivered(ctx context.Context, actor user.Actor, orderID int64, at time.Time) (*order.Order, error) {
	var o *order.Order
	changed := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockVisible(ctx, actor, orderID); err != nil {
			return err
		}
		if o.Status == order.StatusDelivered {
			return nil
		}
		if err := s.transition(ctx, o, order.StatusDelivered, actor, order.LogDelivered, "delivered"); err != nil {
			return err
		}
		at = at.UTC()
		o.DeliveredAt = &at
		changed = true
		return s.repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		s.fail("deliver", orderID, actor, err)
		return nil, err
	}
	if changed {
		s.finish("deliver", o, actor)
		s.emit(ctx, events.OrderDelivered, o, nil)
	}
	return o, nil
}

func (s *Service) MarkPaid(ctx context.Context, actor user.Actor, orderID int64, method order.PaymentMethod, confirm bool) (*order.Order, error) {
	var o *order.Order
	confirmed := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockVisible(ctx, actor, orderID); err != nil {
			return err
		}
		if o.Status == order.StatusCancelled || o.PaymentStatus != order.PaymentPending {
			return fmt.Errorf("%w: status %s, payment %s", ErrNotPayable, o.Status, o.PaymentStatus)
		}
		m := method
		o.PaymentMethod = &m
		if err := s.setPaymentStatus(ctx, o, order.PaymentPaid, actor, order.LogPaymentReceived, "payment received via "+string(method)); err != nil {
			return err
		}
		if confirm && o.Status == order.StatusPending {
			if err := s.transition(ctx, o, order.StatusConfirmed, actor, order.LogStatusChanged, "confirmed after payment"); err != nil {
				return err
			}
			confirmed = true
		}
		return s.repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		s.fail("mark_paid", orderID, actor, err)
		return nil, err
	}
	s.finish("mark_paid", o, actor)
	if confirmed {
		s.emit(ctx, events.OrderConfirmed, o, nil)
	}
	return o, nil
}

// RecordBankReceipt notes an uploaded transfer receipt. The order stays unpaid until an admin approves it.
func (s *Service) RecordBankReceipt(ctx context.Context, actor user.Actor, orderID int64, bankName, receiptPath string) (*order.Order, error) {
	var o *order.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockVisible(ctx, actor, orderID); err != nil {
			return err
		}
		if o.Status == order.StatusCancelled || o.PaymentStatus != order.PaymentPending {
			return ErrNotPayable
		}
		m := order.MethodBankTransfer
		o.PaymentMethod = &m
		o.UpdatedAt = s.now().UTC()
		s.appendNote(o, actor, fmt.Sprintf("bank transfer receipt uploaded (%s)", bankName))
		if err := s.record(ctx, o, actor, order.LogBankReceiptUploaded, "bank transfer receipt uploaded", nil,
			map[string]any{"bank_name": bankName, "receipt": receiptPath}); err != nil {
			return err
		}
		return s.repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		s.fail("bank_receipt", orderID, actor, err)
		return nil, err
	}
	return o, nil
}

func (s *Service) AddInternalNote(ctx context.Context, actor user.Actor, orderID int64, note string) (*order.Order, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	var o *order.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockVisible(ctx, actor, orderID); err != nil {
			return err
		}
		s.appendNote(o, actor, note)
		o.UpdatedAt = s.now().UTC()
		if err := s.record(ctx, o, actor, order.LogNoteAdded, note, nil, nil); err != nil {
			return err
		}
		return s.repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Cancel releases every reserved line and refunds a balance payment.
// Only pending and confirmed orders can be cancelled.
func (s *Service) Cancel(ctx context.Context, actor user.Actor, orderID int64, reason string) (*order.Order, error) {
	return s.cancel(ctx, actor, orderID, reason, nil)
}

func (s *Service) cancel(ctx context.Context, actor user.Actor, orderID int64, reason string, guard func(*order.Order) bool) (*order.Order, error) {
	if strings.TrimSpace(reason) == "" {
		reason = defaultCancelReason
	}
	var o *order.Order
	skipped := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockVisible(ctx, actor, orderID); err != nil {
			return err
		}
		if guard != nil && !guard(o) {
			skipped = true
			return nil
		}
		if !o.CanBeCancelled() {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, order.StatusCancelled)
		}
		for _, it := range byProduct(o.Items) {
			if _, err := s.stock.Release(ctx, it.ProductID, it.Quantity, o.ID); err != nil {
				return fmt.Errorf("release product %d: %w", it.ProductID, err)
			}
		}
		if o.PaymentStatus == order.PaymentPaid {
			if o.PaidWith(order.MethodBalance) {
				if _, err := s.balance.Refund(ctx, o.UserID, o.GrandTotal, "refund for order "+o.Number, ref.Order(o.ID), actor); err != nil {
					return fmt.Errorf("refund: %w", err)
				}
			}
			if err := s.setPaymentStatus(ctx, o, order.PaymentRefunded, actor, order.LogPaymentStatusChanged, "payment refunded"); err != nil {
				return err
			}
		}
		if err := s.transition(ctx, o, order.StatusCancelled, actor, order.LogCancelled, reason); err != nil {
			return err
		}
		s.appendNote(o, actor, "cancelled: "+reason)
		return s.repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		s.fail("cancel", orderID, actor, err)
		return nil, err
	}
	if skipped {
		return o, nil
	}
	s.finish("cancel", o, actor)
	s.emit(ctx, events.OrderCancelled, o, map[string]any{"reason": reason})
	return o, nil
}

// CancelExpired cancels pending unpaid orders created before cutoff, one transaction each.
// Orders that were paid or changed since listing are left alone.
func (s *Service) CancelExpired(ctx context.Context, cutoff time.Time) (int, error) {
	expired, err := s.repo.ListExpiredOrders(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}
	guard := func(o *order.Order) bool {
		return o.Status == order.StatusPending && o.PaymentStatus == order.PaymentPending && o.CreatedAt.Before(cutoff)
	}
	cancelled := 0
	for _, e := range expired {
		if err := ctx.Err(); err != nil {
			return cancelled, err
		}
		o, err := s.cancel(ctx, user.System, e.ID, paymentTimeoutReason, guard)
		if err != nil {
			continue
		}
		if o.Status == order.StatusCancelled {
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *Service) Get(ctx context.Context, actor user.Actor, number string) (*order.Order, error) {
	o, err := s.repo.FindOrderByNumber(ctx, number)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if !visible(o, actor) {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) GetByID(ctx context.Context, actor user.Actor, orderID int64) (*order.Order, error) {
	o, err := s.repo.FindOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if !visible(o, actor) {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// GetDetail attaches payments and shipment. The audit log is only shown to admins.
func (s *Service) GetDetail(ctx context.Context, actor user.Actor, number string) (*Detail, error) {
	o, err := s.Get(ctx, actor, number)
	if err != nil {
		return nil, err
	}
	d := &Detail{Order: o}
	if d.Payments, err = s.repo.ListPayments(ctx, o.ID); err != nil {
		return nil, err
	}
	sh, err := s.repo.FindShipmentByOrder(ctx, o.ID)
	switch {
	case err == nil:
		d.Shipment = sh
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	if actor.Admin {
		if d.Logs, err = s.repo.ListOrderLogs(ctx, o.ID); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, actor user.Actor, f order.Filter) ([]order.Order, error) {
	if !actor.Admin {
		f.UserID = actor.ID
	}
	return s.repo.ListOrders(ctx, f)
}
