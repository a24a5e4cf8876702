package order

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/antonminaichev/wholesale/internal/balance"
	"github.com/antonminaichev/wholesale/internal/events"
	"github.com/antonminaichev/wholesale/internal/events/eventstest"
	"github.com/antonminaichev/wholesale/internal/pricing"
	"github.com/antonminaichev/wholesale/internal/stock"
	"github.com/antonminaichev/wholesale/internal/storage/memory"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/antonminaichev/wholesale/internal/types/ref"
	stocktypes "github.com/antonminaichev/wholesale/internal/types/stock"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	balance  *balance.Ledger
	events   *eventstest.Recorder
	buyer    user.Actor
	other    user.Actor
	admin    user.Actor
	products []int64
	now      time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func newFixture(t *testing.T, stocks ...int) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:  memory.New(),
		events: &eventstest.Recorder{},
		now:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}

	for i, email := range []string{"buyer@example.com", "other@example.com"} {
		u := &user.User{Email: email, Name: "Buyer " + email[:1], Phone: "+90555000000" + string(rune('0'+i)), IsActive: true}
		require.NoError(t, f.store.CreateUser(ctx, u))
		require.NoError(t, f.store.CreateCompany(ctx, &user.Company{
			UserID: u.ID, Name: "Acme", Address: "Ataturk Cd. 1", City: "Istanbul", District: "Kadikoy", PostalCode: "34710",
		}))
		a := user.Actor{ID: u.ID, Name: u.Name, IP: "192.0.2.10", UserAgent: "test"}
		if i == 0 {
			f.buyer = a
		} else {
			f.other = a
		}
	}
	f.admin = user.Actor{ID: 999, Name: "Admin", Admin: true}

	for i, qty := range stocks {
		p := &product.Product{
			SKU:              "SKU-" + string(rune('A'+i)),
			Name:             "Product " + string(rune('A'+i)),
			BasePrice:        dec("100"),
			VATRate:          dec("20"),
			StockQuantity:    qty,
			MinOrderQuantity: 1,
			Weight:           dec("0.5"),
			IsActive:         true,
		}
		require.NoError(t, f.store.CreateProduct(ctx, p))
		f.products = append(f.products, p.ID)
	}

	stockLedger := stock.NewLedger(f.store, f.store).WithClock(f.clock)
	f.balance = balance.NewLedger(f.store, f.store).WithClock(f.clock)
	resolver := pricing.NewResolver(f.store).WithClock(f.clock)
	f.svc = NewService(f.store, f.store, resolver, stockLedger, f.balance, f.events, "WS").WithClock(f.clock)
	return f
}

func (f *fixture) stockOf(t *testing.T, id int64) int {
	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func (f *fixture) create(t *testing.T, lines ...order.CreateLine) *order.Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), f.buyer, order.CreateRequest{Lines: lines})
	require.NoError(t, err)
	return o
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 5)

	o := f.create(t,
		order.CreateLine{ProductID: f.products[0], Quantity: 2},
		order.CreateLine{ProductID: f.products[1], Quantity: 1},
	)

	assert.Equal(t, "WS202603140001", o.Number)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.Equal(t, order.TypeCargo, o.OrderType)
	assert.Equal(t, order.DeliveryStandard, o.DeliveryType)
	assert.True(t, o.Subtotal.Equal(dec("300")))
	assert.True(t, o.VATTotal.Equal(dec("60")))
	assert.True(t, o.ShippingCost.Equal(dec("25")))
	assert.True(t, o.GrandTotal.Equal(dec("385")))
	assert.True(t, o.TotalsConsistent())
	assert.Equal(t, "Ataturk Cd. 1, Kadikoy, Istanbul, 34710", o.BillingAddress)
	assert.Equal(t, o.BillingAddress, o.ShippingAddress)

	assert.Equal(t, 8, f.stockOf(t, f.products[0]))
	assert.Equal(t, 4, f.stockOf(t, f.products[1]))

	ms, _ := f.store.ListStockMovements(ctx, f.products[0])
	require.Len(t, ms, 1)
	assert.Equal(t, ref.Order(o.ID), ms[0].Reference)

	stored, err := f.svc.Get(ctx, f.buyer, o.Number)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.True(t, stored.Items[0].TotalPrice.Equal(dec("240")))

	logs, _ := f.store.ListOrderLogs(ctx, o.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, order.LogCreated, logs[0].Action)
	assert.Equal(t, []events.Type{events.OrderCreated}, f.events.Types())

	second := f.create(t, order.CreateLine{ProductID: f.products[0], Quantity: 1})
	assert.Equal(t, "WS202603140002", second.Number)
}

func TestCreateOrderAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 10, 2, 10, 10)

	lines := make([]order.CreateLine, 0, len(f.products))
	for _, id := range f.products {
		lines = append(lines, order.CreateLine{ProductID: id, Quantity: 3})
	}
	_, err := f.svc.Create(ctx, f.buyer, order.CreateRequest{Lines: lines})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	for i, id := range f.products {
		want := 10
		if i == 2 {
			want = 2
		}
		assert.Equal(t, want, f.stockOf(t, id))
		ms, _ := f.store.ListStockMovements(ctx, id)
		assert.Empty(t, ms)
	}
	orders, _ := f.store.ListOrders(ctx, order.Filter{})
	assert.Empty(t, orders)
	assert.Empty(t, f.events.Events)
}

type orderedStock struct {
	StockReserver
	reserved []int64
	released []int64
}

func (o *orderedStock) Reserve(ctx context.Context, productID int64, qty int, orderID int64) (*stocktypes.Movement, error) {
	o.reserved = append(o.reserved, productID)
	return o.StockReserver.Reserve(ctx, productID, qty, orderID)
}

func (o *orderedStock) Release(ctx context.Context, productID int64, qty int, orderID int64) (*stocktypes.Movement, error) {
	o.released = append(o.released, productID)
	return o.StockReserver.Release(ctx, productID, qty, orderID)
}

func TestStockLockedInProductOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 10, 10)
	rec := &orderedStock{StockReserver: stock.NewLedger(f.store, f.store).WithClock(f.clock)}
	svc := NewService(f.store, f.store, pricing.NewResolver(f.store).WithClock(f.clock), rec, f.balance, f.events, "WS").WithClock(f.clock)

	a, b, c := f.products[0], f.products[1], f.products[2]
	o, err := svc.Create(ctx, f.buyer, order.CreateRequest{Lines: []order.CreateLine{
		{ProductID: c, Quantity: 1}, {ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 3},
	}})
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b, c}, rec.reserved)
	require.Len(t, o.Items, 3)
	assert.Equal(t, c, o.Items[0].ProductID)

	_, err = svc.Cancel(ctx, f.admin, o.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b, c}, rec.released)
	for _, id := range f.products {
		assert.Equal(t, 10, f.stockOf(t, id))
	}
}

func TestCreateOrderValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	inactive := &product.Product{SKU: "OFF", Name: "off", BasePrice: dec("1"), StockQuantity: 5, IsActive: false}
	require.NoError(t, f.store.CreateProduct(ctx, inactive))
	bulk := &product.Product{SKU: "BULK", Name: "bulk", BasePrice: dec("1"), StockQuantity: 50, MinOrderQuantity: 10, IsActive: true}
	require.NoError(t, f.store.CreateProduct(ctx, bulk))

	tests := []struct {
		name    string
		req     order.CreateRequest
		wantErr error
	}{
		{"empty", order.CreateRequest{}, ErrEmptyOrder},
		{"zero quantity", order.CreateRequest{Lines: []order.CreateLine{{ProductID: f.products[0], Quantity: 0}}}, ErrInvalidQuantity},
		{"unknown product", order.CreateRequest{Lines: []order.CreateLine{{ProductID: 404, Quantity: 1}}}, ErrProductUnavailable},
		{"inactive product", order.CreateRequest{Lines: []order.CreateLine{{ProductID: inactive.ID, Quantity: 1}}}, ErrProductUnavailable},
		{"below minimum", order.CreateRequest{Lines: []order.CreateLine{{ProductID: bulk.ID, Quantity: 9}}}, ErrBelowMinimumQuantity},
		{"bad delivery", order.CreateRequest{Lines: []order.CreateLine{{ProductID: f.products[0], Quantity: 1}}, DeliveryType: "drone"}, ErrInvalidOrderType},
		{"different shipping without address", order.CreateRequest{Lines: []order.CreateLine{{ProductID: f.products[0], Quantity: 1}}, UseDifferentShipping: true}, ErrMissingShipping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.buyer, tt.req)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
	assert.Equal(t, 10, f.stockOf(t, f.products[0]))
}

func TestCreateOrderUsesNegotiatedPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	buyerID := f.buyer.ID
	require.NoError(t, f.store.CreateCustomPrice(ctx, &product.CustomPrice{
		ProductID: f.products[0], UserID: &buyerID, Price: dec("80"), MinQuantity: 10,
	}))

	o, err := f.svc.Create(ctx, f.buyer, order.CreateRequest{
		Lines:        []order.CreateLine{{ProductID: f.products[0], Quantity: 10}},
		DeliveryType: order.DeliveryPickup,
		OrderType:    order.TypePickup,
	})
	require.NoError(t, err)
	assert.True(t, o.Items[0].UnitPrice.Equal(dec("80")))
	assert.True(t, o.GrandTotal.Equal(dec("960")))
	assert.True(t, o.TotalsConsistent())
}

func TestCancelBalancePaidOrderRestoresBalanceAndStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	_, err := f.balance.Deposit(ctx, f.buyer.ID, dec("500"), "top up", f.admin)
	require.NoError(t, err)

	o := f.create(t, order.CreateLine{ProductID: f.products[0], Quantity: 1})
	_, err = f.balance.Withdraw(ctx, f.buyer.ID, o.GrandTotal, "order "+o.Number, ref.Order(o.ID))
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, user.System, o.ID, order.MethodBalance, false)
	require.NoError(t, err)

	b, _ := f.balance.Balance(ctx, f.buyer.ID)
	assert.True(t, b.Equal(dec("355")))

	cancelled, err := f.svc.Cancel(ctx, f.buyer, o.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, order.PaymentRefunded, cancelled.PaymentStatus)
	assert.Contains(t, cancelled.InternalNotes, "Buyer b: cancelled: changed my mind")
	assert.True(t, strings.HasPrefix(cancelled.InternalNotes, "[14.03.2026 09:30]"))

	b, _ = f.balance.Balance(ctx, f.buyer.ID)
	assert.True(t, b.Equal(dec("500")))
	assert.Equal(t, 10, f.stockOf(t, f.products[0]))

	rep, err := f.balance.Audit(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.True(t, rep.Consistent)
	ts, _ := f.balance.Transactions(ctx, f.buyer.ID)
	require.Len(t, ts, 3)
	assert.Equal(t, ref.Order(o.ID), ts[2].Reference)

	logs, _ := f.store.ListOrderLogs(ctx, o.ID)
	actions := make([]order.LogAction, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Equal(t, []order.LogAction{order.LogCreated, order.LogPaymentReceived, order.LogPaymentStatusChanged, order.LogCancelled}, actions)
}

func TestCancelCardPaidOrderHasNoLedgerMovement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	o := f.create(t, order.CreateLine{ProductID: f.products[0], Quantity: 4})

	_, err := f.svc.MarkPaid(ctx, user.System, o.ID, order.MethodCreditCard, true)
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, f.admin, o.ID, "")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentRefunded, cancelled.PaymentStatus)
	ts, _ := f.store.ListBalanceTransactions(ctx, f.buyer.ID)
	assert.Empty(t, ts)
	assert.Equal(t, 10, f.stockOf(t, f.products[0]))
}

func TestIllegalCancellation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	o := f.create(t, order.CreateLine{ProductID: f.products[0], Quantity: 1})

	_, err := f.svc.MarkPaid(ctx, user.System, o.ID, order.MethodCreditCard, true)
	require.NoError(t, err)
	_, err = f.svc.MarkProcessing(ctx, f.admin, o.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, f.admin, o.ID, "too late")
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	got, _ := f.svc.GetByID(ctx, f.admin, o.ID)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Equal(t, 9, f.stockOf(t, f.products[0]))

	_, err = f.svc.MarkShipped(ctx, f.admin, o.ID, "TRK1")
	require.NoError(t, err)
	_, err = f.svc.MarkDelivered(ctx, user.System, o.ID, f.now)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, f.admin, o.ID, "too late")
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	got, _ = f.svc.GetByID(ctx, f.admin, o.ID)
	assert.Equal(t, order.StatusDelivered, got.Status)
	assert.Equal(t, order.PaymentPaid, got.PaymentStatus)
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	o := f.create(t, order.CreateLine{ProductID: f.products[0], Quantity: 1})

	_, err := f.svc.MarkProcessing(ctx, f.admin, o.ID)
	assert.True(t, errors.Is(err, ErrIllegalTransition), "pending cannot skip to processing")

	_, err = f.svc.MarkProcessing(ctx, f.buyer, o.ID)
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = f.svc.Confirm(ctx, f.buyer, o.ID)
	assert.True(t, errors.Is(err, ErrForbidden), "buyer cannot confirm an unpaid order")

	confirmed, err := f.svc.Confirm(ctx, f.admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, confirmed.Status)

	_, err = f.svc.Confirm(ctx, f.admin, o.ID)
	assert.True(t, errors.Is(err, ErrIllegalTransition))

	_, err = f.svc.MarkProcessing(ctx, f.admin, o.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkShipped(ctx, f.admin, o.ID, "TRK")
	assert.True(t, errors.Is(err, ErrNotShippable), "unpaid orders are not shipped")

	_, err = f.svc.MarkPaid(ctx, user.System, o.ID, order.MethodBankTransfer, true)
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, user.System, o.ID, order.MethodBankTransfer, true)
	assert.True(t, errors.Is(err, ErrNotPayable))

	shipped, err := f.svc.MarkShipped(ctx, f.admin, o.ID, "TRK")
	require.NoError(t, err)
	require.NotNil(t, shipped.ShippedAt)

	delivered, err := f.svc.MarkDelivered(ctx, user.System, o.ID, f.now.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)

	logs, _ := f.store.ListOrderLogs(ctx, o.ID)
	n := len(logs)
	again, err := f.svc.MarkDelivered(ctx, user.System, o.ID, f.now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, again.Status)
	logs, _ = f.store.ListOrderLogs(ctx, o.ID)
	assert.Len(t, logs, n)

	for _, l := range logs {
		if l.Action == order.LogStatusChanged || l.Action == order.LogShipped || l.Action == order.LogDelivered {
			assert.Contains(t, l.OldValue, "status")
			assert.Contains(t, l.NewValue, "status")
		}
	}
	assert.Equal(t, []events.Type{events.OrderCreated, events.OrderConfirmed, events.OrderShipped, events.OrderDelivered}, f.events.Types())
}

func TestOrdersAreScopedToOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	o := f.create(t, order.CreateLine{ProductID: f.products[0], Quantity: 1})

	_, err := f.svc.Get(ctx, f.other, o.Number)
	assert.True(t, errors.Is(err, ErrOrderNotFound))
	_, err = f.svc.Cancel(ctx, f.other, o.ID, "not mine")
	assert.True(t, errors.Is(err, ErrOrderNotFound))
	_, err = f.svc.Get(ctx, f.buyer, "WS000")
	assert.True(t, errors.Is(err, ErrOrderNotFound))

	mine, err := f.svc.List(ctx, f.other, order.Filter{UserID: f.buyer.ID})
	require.NoError(t, err)
	assert.Empty(t, mine)

	all, err := f.svc.List(ctx, f.admin, order.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	d, err := f.svc.GetDetail(ctx, f.buyer, o.Number)
	require.NoError(t, err)
	assert.Empty(t, d.Logs)
	assert.Nil(t, d.Shipment)

	d, err = f.svc.GetDetail(ctx, f.admin, o.Number)
	require.NoError(t, err)
	assert.Len(t, d.Logs, 1)
}

func TestRecordBankReceiptAndNotes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	o := f.create(t, order.CreateLine{ProductID: f.products[0], Quantity: 1})

	got, err := f.svc.RecordBankReceipt(ctx, f.buyer, o.ID, "Ziraat", "receipts/r.pdf")
	require.NoError(t, err)
	assert.True(t, got.PaidWith(order.MethodBankTransfer))
	assert.Equal(t, order.PaymentPending, got.PaymentStatus)
	assert.Contains(t, got.InternalNotes, "bank transfer receipt uploaded (Ziraat)")

	_, err = f.svc.AddInternalNote(ctx, f.buyer, o.ID, "hi")
	assert.True(t, errors.Is(err, ErrForbidden))
	got, err = f.svc.AddInternalNote(ctx, f.admin, o.ID, "called the buyer")
	require.NoError(t, err)
	lines := strings.Split(got.InternalNotes, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[14.03.2026 09:30] Admin: called the buyer", lines[1])
}

func TestCancelExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	old := f.create(t, order.CreateLine{ProductID: f.products[0], Quantity: 3})
	paidOld := f.create(t, order.CreateLine{ProductID: f.products[0], Quantity: 1})
	_, err := f.svc.MarkPaid(ctx, user.System, paidOld.ID, order.MethodCreditCard, false)
	require.NoError(t, err)

	f.now = f.now.Add(23 * time.Hour)
	young := f.create(t, order.CreateLine{ProductID: f.products[0], Quantity: 2})
	assert.Equal(t, 4, f.stockOf(t, f.products[0]))

	f.now = f.now.Add(2 * time.Hour)
	n, err := f.svc.CancelExpired(ctx, f.now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.svc.GetByID(ctx, f.admin, old.ID)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Contains(t, got.InternalNotes, "system: cancelled: payment timeout")
	got, _ = f.svc.GetByID(ctx, f.admin, young.ID)
	assert.Equal(t, order.StatusPending, got.Status)
	got, _ = f.svc.GetByID(ctx, f.admin, paidOld.ID)
	assert.Equal(t, order.StatusPending, got.Status)

	assert.Equal(t, 7, f.stockOf(t, f.products[0]))
}
