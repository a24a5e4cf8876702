package postgres

import (
	"context"

	"github.com/antonminaichev/wholesale/internal/types/cart"
)

const cartColumns = `id, user_id, product_id, quantity, created_at, updated_at`

func scanCartItem(row interface{ Scan(...any) error }) (*cart.Item, error) {
	it := &cart.Item{}
	if err := row.Scan(&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, wrap(err)
	}
	return it, nil
}

func (s *PostgresStorage) FindCartItem(ctx context.Context, userID, productID int64) (*cart.Item, error) {
	q := `SELECT ` + cartColumns + ` FROM cart_items WHERE user_id=$1 AND product_id=$2`
	return scanCartItem(s.conn(ctx).QueryRowContext(ctx, q, userID, productID))
}

func (s *PostgresStorage) GetCartItem(ctx context.Context, id int64) (*cart.Item, error) {
	q := `SELECT ` + cartColumns + ` FROM cart_items WHERE id=$1`
	return scanCartItem(s.conn(ctx).QueryRowContext(ctx, q, id))
}

func (s *PostgresStorage) SaveCartItem(ctx context.Context, it *cart.Item) error {
	q := `
        INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1,$2,$3)
        ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
        RETURNING ` + cartColumns
	saved, err := scanCartItem(s.conn(ctx).QueryRowContext(ctx, q, it.UserID, it.ProductID, it.Quantity))
	if err != nil {
		return err
	}
	*it = *saved
	return nil
}

func (s *PostgresStorage) DeleteCartItem(ctx context.Context, id int64) error {
	return expectRow(s.conn(ctx).ExecContext(ctx, `DELETE FROM cart_items WHERE id=$1`, id))
}

func (s *PostgresStorage) ListCartItems(ctx context.Context, userID int64) ([]cart.Item, error) {
	q := `SELECT ` + cartColumns + ` FROM cart_items WHERE user_id=$1 ORDER BY id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cart.Item
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) ClearCart(ctx context.Context, userID int64) error {
	_, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM cart_items WHERE user_id=$1`, userID)
	return err
}
