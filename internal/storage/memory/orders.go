package memory

import (
	"context"
	"sort"
	"time"

	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/types/order"
)

func (s *Store) NextOrderSequence(ctx context.Context, day time.Time) (int, error) {
	defer s.lock(ctx)()
	key := day.Format("20060102")
	s.d.sequences[key]++
	return s.d.sequences[key], nil
}

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	defer s.lock(ctx)()
	for _, existing := range s.d.orders {
		if existing.Number == o.Number {
			return storage.ErrDuplicate
		}
	}
	o.ID = s.nextID()
	stored := *o
	stored.Items = nil
	s.d.orders[o.ID] = stored
	return nil
}

func (s *Store) CreateOrderItems(ctx context.Context, orderID int64, items []order.Item) error {
	defer s.lock(ctx)()
	if _, ok := s.d.orders[orderID]; !ok {
		return storage.ErrNotFound
	}
	for i := range items {
		items[i].ID = s.nextID()
		items[i].OrderID = orderID
		s.d.items[orderID] = append(s.d.items[orderID], items[i])
	}
	return nil
}

func (s *Store) UpdateOrder(ctx context.Context, o *order.Order) error {
	defer s.lock(ctx)()
	if _, ok := s.d.orders[o.ID]; !ok {
		return storage.ErrNotFound
	}
	stored := *o
	stored.Items = nil
	s.d.orders[o.ID] = stored
	return nil
}

func (s *Store) withItems(o order.Order) *order.Order {
	o.Items = append([]order.Item(nil), s.d.items[o.ID]...)
	return &o
}

func (s *Store) FindOrder(ctx context.Context, id int64) (*order.Order, error) {
	defer s.lock(ctx)()
	o, ok := s.d.orders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.withItems(o), nil
}

func (s *Store) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	return s.FindOrder(ctx, id)
}

func (s *Store) FindOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	defer s.lock(ctx)()
	for _, o := range s.d.orders {
		if o.Number == number {
			return s.withItems(o), nil
		}
	}
	return nil, storage.ErrNotFound
}

func matches(o order.Order, f order.Filter) bool {
	if f.UserID != 0 && o.UserID != f.UserID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !o.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

func (s *Store) ListOrders(ctx context.Context, f order.Filter) ([]order.Order, error) {
	defer s.lock(ctx)()
	var out []order.Order
	for _, o := range s.d.orders {
		if matches(o, f) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ListExpiredOrders(ctx context.Context, cutoff time.Time) ([]order.Order, error) {
	defer s.lock(ctx)()
	var out []order.Order
	for _, o := range s.d.orders {
		if o.Status == order.StatusPending && o.PaymentStatus == order.PaymentPending && o.CreatedAt.Before(cutoff) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AppendOrderLog(ctx context.Context, l *order.Log) error {
	defer s.lock(ctx)()
	l.ID = s.nextID()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}
	s.d.logs = append(s.d.logs, *l)
	return nil
}

func (s *Store) ListOrderLogs(ctx context.Context, orderID int64) ([]order.Log, error) {
	defer s.lock(ctx)()
	var out []order.Log
	for _, l := range s.d.logs {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}
