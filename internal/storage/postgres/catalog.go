package postgres

import (
	"context"
	"database/sql"

	"github.com/antonminaichev/wholesale/internal/types/product"
	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/antonminaichev/wholesale/internal/types/stock"
	"github.com/shopspring/decimal"
)

const productColumns = `id, sku, name, base_price, vat_rate, stock_quantity, min_order_quantity, weight, is_active`

func scanProduct(row interface{ Scan(...any) error }) (*product.Product, error) {
	p := &product.Product{}
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.BasePrice, &p.VATRate, &p.StockQuantity,
		&p.MinOrderQuantity, &p.Weight, &p.IsActive); err != nil {
		return nil, wrap(err)
	}
	return p, nil
}

func (s *PostgresStorage) CreateProduct(ctx context.Context, p *product.Product) error {
	q := `INSERT INTO products (sku, name, base_price, vat_rate, stock_quantity, min_order_quantity, weight, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`
	return wrap(s.conn(ctx).QueryRowContext(ctx, q,
		p.SKU, p.Name, p.BasePrice, p.VATRate, p.StockQuantity, p.MinOrderQuantity, p.Weight, p.IsActive,
	).Scan(&p.ID))
}

func (s *PostgresStorage) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products WHERE id=$1`
	return scanProduct(s.conn(ctx).QueryRowContext(ctx, q, id))
}

func (s *PostgresStorage) LockProduct(ctx context.Context, id int64) (*product.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products WHERE id=$1 FOR UPDATE`
	return scanProduct(s.conn(ctx).QueryRowContext(ctx, q, id))
}

func (s *PostgresStorage) SetProductStock(ctx context.Context, id int64, qty int) error {
	return expectRow(s.conn(ctx).ExecContext(ctx, `UPDATE products SET stock_quantity=$1 WHERE id=$2`, qty, id))
}

func (s *PostgresStorage) AppendStockMovement(ctx context.Context, m *stock.Movement) error {
	refType, refID := m.Reference.Columns()
	q := `
        INSERT INTO stock_movements
            (product_id, type, quantity, stock_before, stock_after, reference_type, reference_id,
             description, unit_cost, created_by, ip_address, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`
	var unitCost decimal.NullDecimal
	if m.UnitCost != nil {
		unitCost = decimal.NewNullDecimal(*m.UnitCost)
	}
	return wrap(s.conn(ctx).QueryRowContext(ctx, q,
		m.ProductID, m.Type, m.Quantity, m.StockBefore, m.StockAfter, refType, refID,
		m.Description, unitCost, m.CreatedBy, m.IPAddress, m.CreatedAt,
	).Scan(&m.ID))
}

func (s *PostgresStorage) ListStockMovements(ctx context.Context, productID int64) ([]stock.Movement, error) {
	q := `
        SELECT id, product_id, type, quantity, stock_before, stock_after, reference_type, reference_id,
               description, unit_cost, created_by, ip_address, created_at
        FROM stock_movements WHERE product_id=$1 ORDER BY id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stock.Movement
	for rows.Next() {
		var m stock.Movement
		var refType sql.NullString
		var refID, createdBy sql.NullInt64
		var unitCost decimal.NullDecimal
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.StockBefore, &m.StockAfter,
			&refType, &refID, &m.Description, &unitCost, &createdBy, &m.IPAddress, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.Reference, err = ref.Parse(nullString(refType), nullInt64(refID)); err != nil {
			return nil, err
		}
		if unitCost.Valid {
			m.UnitCost = &unitCost.Decimal
		}
		m.CreatedBy = nullInt64(createdBy)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) ListLowStockProducts(ctx context.Context, threshold int) ([]product.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products
        WHERE is_active AND stock_quantity > 0 AND stock_quantity < $1
        ORDER BY stock_quantity`
	rows, err := s.conn(ctx).QueryContext(ctx, q, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) CreateCustomPrice(ctx context.Context, p *product.CustomPrice) error {
	q := `INSERT INTO custom_prices (product_id, user_id, customer_group_id, price, min_quantity, start_date, end_date)
        VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`
	return wrap(s.conn(ctx).QueryRowContext(ctx, q,
		p.ProductID, p.UserID, p.GroupID, p.Price, p.MinQuantity, p.StartDate, p.EndDate,
	).Scan(&p.ID))
}

func (s *PostgresStorage) CreateGroup(ctx context.Context, g *product.Group) error {
	q := `INSERT INTO customer_groups (name, discount_percentage, is_active) VALUES ($1,$2,$3) RETURNING id`
	return wrap(s.conn(ctx).QueryRowContext(ctx, q, g.Name, g.DiscountPercentage, g.IsActive).Scan(&g.ID))
}

func (s *PostgresStorage) AddUserToGroup(ctx context.Context, userID, groupID int64) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO user_groups (user_id, customer_group_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, userID, groupID)
	return wrap(err)
}

func (s *PostgresStorage) listPrices(ctx context.Context, q string, args ...any) ([]product.CustomPrice, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []product.CustomPrice
	for rows.Next() {
		var p product.CustomPrice
		var userID, groupID sql.NullInt64
		var start, end sql.NullTime
		if err := rows.Scan(&p.ID, &p.ProductID, &userID, &groupID, &p.Price, &p.MinQuantity, &start, &end); err != nil {
			return nil, err
		}
		p.UserID = nullInt64(userID)
		p.GroupID = nullInt64(groupID)
		p.StartDate = nullTime(start)
		p.EndDate = nullTime(end)
		out = append(out, p)
	}
	return out, rows.Err()
}

const priceColumns = `cp.id, cp.product_id, cp.user_id, cp.customer_group_id, cp.price, cp.min_quantity, cp.start_date, cp.end_date`

func (s *PostgresStorage) UserCustomPrices(ctx context.Context, userID, productID int64) ([]product.CustomPrice, error) {
	q := `SELECT ` + priceColumns + ` FROM custom_prices cp WHERE cp.user_id=$1 AND cp.product_id=$2`
	return s.listPrices(ctx, q, userID, productID)
}

func (s *PostgresStorage) GroupCustomPrices(ctx context.Context, userID, productID int64) ([]product.CustomPrice, error) {
	q := `SELECT ` + priceColumns + ` FROM custom_prices cp
        JOIN user_groups ug ON ug.customer_group_id = cp.customer_group_id
        WHERE ug.user_id=$1 AND cp.product_id=$2`
	return s.listPrices(ctx, q, userID, productID)
}

func (s *PostgresStorage) GroupsForUser(ctx context.Context, userID int64) ([]product.Group, error) {
	q := `SELECT g.id, g.name, g.discount_percentage, g.is_active FROM customer_groups g
        JOIN user_groups ug ON ug.customer_group_id = g.id WHERE ug.user_id=$1`
	rows, err := s.conn(ctx).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []product.Group
	for rows.Next() {
		var g product.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.DiscountPercentage, &g.IsActive); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
