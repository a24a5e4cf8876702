package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/antonminaichev/wholesale/internal/balance"
	"github.com/antonminaichev/wholesale/internal/events/eventstest"
	orders "github.com/antonminaichev/wholesale/internal/order"
	"github.com/antonminaichev/wholesale/internal/pricing"
	stockledger "github.com/antonminaichev/wholesale/internal/stock"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentOrdersWithReversedLines(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	var buyers []user.Actor
	for i := range 2 {
		u := &user.User{Email: fmt.Sprintf("buyer%d@example.com", i), Name: "Buyer", PasswordHash: "x", IsActive: true}
		require.NoError(t, s.CreateUser(ctx, u))
		require.NoError(t, s.CreateCompany(ctx, &user.Company{UserID: u.ID, Name: "ACME", Address: "Main St 1", City: "Izmir"}))
		buyers = append(buyers, user.Actor{ID: u.ID, Name: u.Name})
	}
	var ids []int64
	for _, sku := range []string{"A", "B"} {
		p := &product.Product{SKU: sku, Name: "item " + sku, BasePrice: decimal.NewFromInt(10),
			VATRate: decimal.NewFromInt(20), StockQuantity: 100, MinOrderQuantity: 1, IsActive: true}
		require.NoError(t, s.CreateProduct(ctx, p))
		ids = append(ids, p.ID)
	}

	svc := orders.NewService(s, s, pricing.NewResolver(s), stockledger.NewLedger(s, s), balance.NewLedger(s, s), &eventstest.Recorder{}, "WS")
	admin := user.Actor{ID: 1, Admin: true}

	const rounds = 15
	lines := [][]order.CreateLine{
		{{ProductID: ids[0], Quantity: 1}, {ProductID: ids[1], Quantity: 1}},
		{{ProductID: ids[1], Quantity: 1}, {ProductID: ids[0], Quantity: 1}},
	}
	errs := make(chan error, 2*rounds)
	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func(buyer user.Actor, cart []order.CreateLine) {
			defer wg.Done()
			for range rounds {
				o, err := svc.Create(ctx, buyer, order.CreateRequest{Lines: cart})
				if err != nil {
					errs <- err
					continue
				}
				if _, err := svc.Cancel(ctx, admin, o.ID, "load test"); err != nil {
					errs <- err
				}
			}
		}(buyers[i], lines[i])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	for _, id := range ids {
		p, err := s.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 100, p.StockQuantity)
	}
	list, err := s.ListOrders(ctx, order.Filter{Status: order.StatusCancelled})
	require.NoError(t, err)
	assert.Len(t, list, 2*rounds)
}
