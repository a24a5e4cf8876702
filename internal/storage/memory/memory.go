// Package memory is an in-process implementation of storage.Storage.
// Transactions are serialised behind a single mutex and undone from a snapshot on error.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/types/balance"
	"github.com/antonminaichev/wholesale/internal/types/cart"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/payment"
	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/antonminaichev/wholesale/internal/types/shipment"
	"github.com/antonminaichev/wholesale/internal/types/stock"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
)

var _ storage.Storage = (*Store)(nil)

type data struct {
	lastID      int64
	users       map[int64]user.User
	companies   map[int64]user.Company // by user id
	products    map[int64]product.Product
	cart        map[int64]cart.Item
	prices      []product.CustomPrice
	groups      map[int64]product.Group
	memberships map[int64][]int64 // user id -> group ids
	movements   []stock.Movement
	balanceTx   []balance.Transaction
	orders      map[int64]order.Order
	items       map[int64][]order.Item
	logs        []order.Log
	sequences   map[string]int
	payments    map[int64]payment.Transaction
	shipments   map[int64]shipment.Shipment
}

func newData() *data {
	return &data{
		users:       make(map[int64]user.User),
		companies:   make(map[int64]user.Company),
		products:    make(map[int64]product.Product),
		cart:        make(map[int64]cart.Item),
		groups:      make(map[int64]product.Group),
		memberships: make(map[int64][]int64),
		orders:      make(map[int64]order.Order),
		items:       make(map[int64][]order.Item),
		sequences:   make(map[string]int),
		payments:    make(map[int64]payment.Transaction),
		shipments:   make(map[int64]shipment.Shipment),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *data) clone() *data {
	c := &data{
		lastID:      d.lastID,
		users:       copyMap(d.users),
		companies:   copyMap(d.companies),
		products:    copyMap(d.products),
		cart:        copyMap(d.cart),
		prices:      append([]product.CustomPrice(nil), d.prices...),
		groups:      copyMap(d.groups),
		memberships: make(map[int64][]int64, len(d.memberships)),
		movements:   append([]stock.Movement(nil), d.movements...),
		balanceTx:   append([]balance.Transaction(nil), d.balanceTx...),
		orders:      copyMap(d.orders),
		items:       make(map[int64][]order.Item, len(d.items)),
		logs:        append([]order.Log(nil), d.logs...),
		sequences:   copyMap(d.sequences),
		payments:    copyMap(d.payments),
		shipments:   copyMap(d.shipments),
	}
	for k, v := range d.memberships {
		c.memberships[k] = append([]int64(nil), v...)
	}
	for k, v := range d.items {
		c.items[k] = append([]order.Item(nil), v...)
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	d   *data
	now func() time.Time
}

func New() *Store {
	return &Store{d: newData(), now: time.Now}
}

type ctxKeyTx struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(ctxKeyTx{}).(*Store)
	return owner == s
}

// lock takes the store mutex unless ctx already runs inside one of its transactions.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(context.WithValue(ctx, ctxKeyTx{}, s)); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

func (s *Store) nextID() int64 {
	s.d.lastID++
	return s.d.lastID
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }

// users

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	defer s.lock(ctx)()
	for _, existing := range s.d.users {
		if existing.Email == u.Email {
			return storage.ErrDuplicate
		}
	}
	u.ID = s.nextID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.d.users[u.ID] = *u
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	defer s.lock(ctx)()
	for _, u := range s.d.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) FindUserByID(ctx context.Context, id int64) (*user.User, error) {
	defer s.lock(ctx)()
	u, ok := s.d.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (s *Store) CreateCompany(ctx context.Context, c *user.Company) error {
	defer s.lock(ctx)()
	c.ID = s.nextID()
	c.UpdatedAt = s.now().UTC()
	s.d.companies[c.UserID] = *c
	return nil
}

func (s *Store) GetCompany(ctx context.Context, userID int64) (*user.Company, error) {
	defer s.lock(ctx)()
	c, ok := s.d.companies[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (s *Store) LockCompany(ctx context.Context, userID int64) (*user.Company, error) {
	return s.GetCompany(ctx, userID)
}

func (s *Store) SetCompanyBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	defer s.lock(ctx)()
	c, ok := s.d.companies[userID]
	if !ok {
		return storage.ErrNotFound
	}
	c.Balance = amount
	c.UpdatedAt = s.now().UTC()
	s.d.companies[userID] = c
	return nil
}

func (s *Store) AppendBalanceTransaction(ctx context.Context, t *balance.Transaction) error {
	defer s.lock(ctx)()
	t.ID = s.nextID()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	s.d.balanceTx = append(s.d.balanceTx, *t)
	return nil
}

func (s *Store) ListBalanceTransactions(ctx context.Context, userID int64) ([]balance.Transaction, error) {
	defer s.lock(ctx)()
	var out []balance.Transaction
	for _, t := range s.d.balanceTx {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// payments

func cloneResponse(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return copyMap(m)
}

func (s *Store) CreatePayment(ctx context.Context, t *payment.Transaction) error {
	defer s.lock(ctx)()
	for _, p := range s.d.payments {
		if p.TransactionID == t.TransactionID {
			return storage.ErrDuplicate
		}
	}
	t.ID = s.nextID()
	stored := *t
	stored.GatewayResponse = cloneResponse(t.GatewayResponse)
	s.d.payments[t.ID] = stored
	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, t *payment.Transaction) error {
	defer s.lock(ctx)()
	if _, ok := s.d.payments[t.ID]; !ok {
		return storage.ErrNotFound
	}
	stored := *t
	stored.GatewayResponse = cloneResponse(t.GatewayResponse)
	s.d.payments[t.ID] = stored
	return nil
}

func (s *Store) LockPayment(ctx context.Context, id int64) (*payment.Transaction, error) {
	defer s.lock(ctx)()
	p, ok := s.d.payments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	p.GatewayResponse = cloneResponse(p.GatewayResponse)
	return &p, nil
}

func (s *Store) LockPaymentByTransactionID(ctx context.Context, transactionID string) (*payment.Transaction, error) {
	defer s.lock(ctx)()
	for _, p := range s.d.payments {
		if p.TransactionID == transactionID {
			p.GatewayResponse = cloneResponse(p.GatewayResponse)
			return &p, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListPayments(ctx context.Context, orderID int64) ([]payment.Transaction, error) {
	defer s.lock(ctx)()
	var out []payment.Transaction
	for _, p := range s.d.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// shipments

func (s *Store) CreateShipment(ctx context.Context, sh *shipment.Shipment) error {
	defer s.lock(ctx)()
	for _, existing := range s.d.shipments {
		if existing.OrderID == sh.OrderID {
			return storage.ErrDuplicate
		}
	}
	sh.ID = s.nextID()
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = s.now().UTC()
	}
	s.d.shipments[sh.ID] = *sh
	return nil
}

func (s *Store) UpdateShipment(ctx context.Context, sh *shipment.Shipment) error {
	defer s.lock(ctx)()
	if _, ok := s.d.shipments[sh.ID]; !ok {
		return storage.ErrNotFound
	}
	s.d.shipments[sh.ID] = *sh
	return nil
}

func (s *Store) FindShipmentByOrder(ctx context.Context, orderID int64) (*shipment.Shipment, error) {
	defer s.lock(ctx)()
	for _, sh := range s.d.shipments {
		if sh.OrderID == orderID {
			return &sh, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) LockShipmentByTracking(ctx context.Context, trackingNumber string) (*shipment.Shipment, error) {
	defer s.lock(ctx)()
	for _, sh := range s.d.shipments {
		if sh.TrackingNumber == trackingNumber {
			return &sh, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListShipmentsForPolling(ctx context.Context, staleBefore time.Time) ([]shipment.Shipment, error) {
	defer s.lock(ctx)()
	var out []shipment.Shipment
	for _, sh := range s.d.shipments {
		if sh.Status.Terminal() {
			continue
		}
		if sh.LastUpdateAt == nil || sh.LastUpdateAt.Before(staleBefore) {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
