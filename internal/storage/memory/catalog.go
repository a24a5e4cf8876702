package memory

import (
	"context"
	"sort"

	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/antonminaichev/wholesale/internal/types/stock"
)

func (s *Store) CreateProduct(ctx context.Context, p *product.Product) error {
	defer s.lock(ctx)()
	p.ID = s.nextID()
	s.d.products[p.ID] = *p
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	defer s.lock(ctx)()
	p, ok := s.d.products[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

func (s *Store) LockProduct(ctx context.Context, id int64) (*product.Product, error) {
	return s.GetProduct(ctx, id)
}

func (s *Store) SetProductStock(ctx context.Context, id int64, qty int) error {
	defer s.lock(ctx)()
	p, ok := s.d.products[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.StockQuantity = qty
	s.d.products[id] = p
	return nil
}

func (s *Store) AppendStockMovement(ctx context.Context, m *stock.Movement) error {
	defer s.lock(ctx)()
	m.ID = s.nextID()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	s.d.movements = append(s.d.movements, *m)
	return nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID int64) ([]stock.Movement, error) {
	defer s.lock(ctx)()
	var out []stock.Movement
	for _, m := range s.d.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) ListLowStockProducts(ctx context.Context, threshold int) ([]product.Product, error) {
	defer s.lock(ctx)()
	var out []product.Product
	for _, p := range s.d.products {
		if p.IsActive && p.StockQuantity > 0 && p.StockQuantity < threshold {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockQuantity < out[j].StockQuantity })
	return out, nil
}

func (s *Store) CreateCustomPrice(ctx context.Context, p *product.CustomPrice) error {
	defer s.lock(ctx)()
	p.ID = s.nextID()
	s.d.prices = append(s.d.prices, *p)
	return nil
}

func (s *Store) CreateGroup(ctx context.Context, g *product.Group) error {
	defer s.lock(ctx)()
	g.ID = s.nextID()
	s.d.groups[g.ID] = *g
	return nil
}

func (s *Store) AddUserToGroup(ctx context.Context, userID, groupID int64) error {
	defer s.lock(ctx)()
	if _, ok := s.d.groups[groupID]; !ok {
		return storage.ErrNotFound
	}
	s.d.memberships[userID] = append(s.d.memberships[userID], groupID)
	return nil
}

func (s *Store) UserCustomPrices(ctx context.Context, userID, productID int64) ([]product.CustomPrice, error) {
	defer s.lock(ctx)()
	var out []product.CustomPrice
	for _, p := range s.d.prices {
		if p.ProductID == productID && p.UserID != nil && *p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) GroupCustomPrices(ctx context.Context, userID, productID int64) ([]product.CustomPrice, error) {
	defer s.lock(ctx)()
	member := make(map[int64]bool)
	for _, g := range s.d.memberships[userID] {
		member[g] = true
	}
	var out []product.CustomPrice
	for _, p := range s.d.prices {
		if p.ProductID == productID && p.GroupID != nil && member[*p.GroupID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) GroupsForUser(ctx context.Context, userID int64) ([]product.Group, error) {
	defer s.lock(ctx)()
	var out []product.Group
	for _, id := range s.d.memberships[userID] {
		if g, ok := s.d.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}
