// Package pricing resolves the unit price a buyer pays for a product at a given quantity.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/shopspring/decimal"
)

type Source string

const (
	SourceUser          Source = "user_price"
	SourceGroup         Source = "group_price"
	SourceGroupDiscount Source = "group_discount"
	SourceBase          Source = "base_price"
)

type Price struct {
	Unit   decimal.Decimal
	Source Source
}

type Resolver struct {
	repo PriceRepository
	now  func() time.Time
}

func NewResolver(repo PriceRepository) *Resolver {
	return &Resolver{repo: repo, now: time.Now}
}

func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve picks, most specific first: the buyer's own price, the cheapest group price,
// the largest active group discount off the base price, or the base price.
// Only repository failures produce an error.
func (r *Resolver) Resolve(ctx context.Context, buyerID int64, p *product.Product, qty int) (Price, error) {
	today := r.now().UTC()

	userPrices, err := r.repo.UserCustomPrices(ctx, buyerID, p.ID)
	if err != nil {
		return Price{}, fmt.Errorf("user prices: %w", err)
	}
	if best, ok := pick(userPrices, qty, today, byMinQuantity); ok {
		return Price{Unit: best.Price, Source: SourceUser}, nil
	}

	groupPrices, err := r.repo.GroupCustomPrices(ctx, buyerID, p.ID)
	if err != nil {
		return Price{}, fmt.Errorf("group prices: %w", err)
	}
	if best, ok := pick(groupPrices, qty, today, byLowestPrice); ok {
		return Price{Unit: best.Price, Source: SourceGroup}, nil
	}

	groups, err := r.repo.GroupsForUser(ctx, buyerID)
	if err != nil {
		return Price{}, fmt.Errorf("groups: %w", err)
	}
	if pct := maxDiscount(groups); pct.IsPositive() {
		factor := decimal.NewFromInt(1).Sub(pct.Div(decimal.NewFromInt(100)))
		return Price{Unit: p.BasePrice.Mul(factor).Round(2), Source: SourceGroupDiscount}, nil
	}

	return Price{Unit: p.BasePrice, Source: SourceBase}, nil
}

type better func(a, b product.CustomPrice) bool

func byMinQuantity(a, b product.CustomPrice) bool {
	return a.MinQuantity > b.MinQuantity
}

func byLowestPrice(a, b product.CustomPrice) bool {
	if !a.Price.Equal(b.Price) {
		return a.Price.LessThan(b.Price)
	}
	return a.MinQuantity > b.MinQuantity
}

func pick(prices []product.CustomPrice, qty int, today time.Time, cmp better) (product.CustomPrice, bool) {
	var best product.CustomPrice
	found := false
	for _, cp := range prices {
		if !Applies(cp, qty, today) {
			continue
		}
		if !found || cmp(cp, best) {
			best = cp
			found = true
		}
	}
	return best, found
}

// Applies reports whether cp covers qty on the calendar day of t. Both date bounds are inclusive.
func Applies(cp product.CustomPrice, qty int, t time.Time) bool {
	if cp.MinQuantity > qty {
		return false
	}
	day := truncateDay(t)
	if cp.StartDate != nil && truncateDay(*cp.StartDate).After(day) {
		return false
	}
	if cp.EndDate != nil && truncateDay(*cp.EndDate).Before(day) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func maxDiscount(groups []product.Group) decimal.Decimal {
	best := decimal.Zero
	for _, g := range groups {
		if g.IsActive && g.DiscountPercentage.GreaterThan(best) {
			best = g.DiscountPercentage
		}
	}
	return best
}
