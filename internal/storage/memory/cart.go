package memory

import (
	"context"
	"sort"

	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/types/cart"
)

func (s *Store) FindCartItem(ctx context.Context, userID, productID int64) (*cart.Item, error) {
	defer s.lock(ctx)()
	for _, it := range s.d.cart {
		if it.UserID == userID && it.ProductID == productID {
			return &it, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetCartItem(ctx context.Context, id int64) (*cart.Item, error) {
	defer s.lock(ctx)()
	it, ok := s.d.cart[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &it, nil
}

func (s *Store) SaveCartItem(ctx context.Context, it *cart.Item) error {
	defer s.lock(ctx)()
	now := s.now().UTC()
	for id, existing := range s.d.cart {
		if existing.UserID == it.UserID && existing.ProductID == it.ProductID {
			existing.Quantity = it.Quantity
			existing.UpdatedAt = now
			s.d.cart[id] = existing
			*it = existing
			return nil
		}
	}
	it.ID = s.nextID()
	it.CreatedAt = now
	it.UpdatedAt = now
	s.d.cart[it.ID] = *it
	return nil
}

func (s *Store) DeleteCartItem(ctx context.Context, id int64) error {
	defer s.lock(ctx)()
	if _, ok := s.d.cart[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.d.cart, id)
	return nil
}

func (s *Store) ListCartItems(ctx context.Context, userID int64) ([]cart.Item, error) {
	defer s.lock(ctx)()
	var out []cart.Item
	for _, it := range s.d.cart {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	defer s.lock(ctx)()
	for id, it := range s.d.cart {
		if it.UserID == userID {
			delete(s.d.cart, id)
		}
	}
	return nil
}
