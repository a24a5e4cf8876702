package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/antonminaichev/wholesale/internal/types/order"
)

func (s *PostgresStorage) NextOrderSequence(ctx context.Context, day time.Time) (int, error) {
	q := `
        INSERT INTO order_sequences (day, value) VALUES ($1, 1)
        ON CONFLICT (day) DO UPDATE SET value = order_sequences.value + 1
        RETURNING value`
	var v int
	err := s.conn(ctx).QueryRowContext(ctx, q, day.Format("2006-01-02")).Scan(&v)
	return v, wrap(err)
}

const orderColumns = `id, order_number, user_id, order_type, delivery_type, status, payment_method, payment_status,
    subtotal, vat_total, discount_total, shipping_cost, grand_total,
    shipping_address, shipping_contact_name, shipping_contact_phone,
    billing_address, billing_contact_name, billing_contact_phone,
    use_different_shipping, is_dropshipping, notes, internal_notes,
    shipped_at, delivered_at, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*order.Order, error) {
	var o order.Order
	var method sql.NullString
	var shipped, delivered sql.NullTime
	if err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.OrderType, &o.DeliveryType, &o.Status, &method, &o.PaymentStatus,
		&o.Subtotal, &o.VATTotal, &o.DiscountTotal, &o.ShippingCost, &o.GrandTotal,
		&o.ShippingAddress, &o.ShippingContactName, &o.ShippingContactPhone,
		&o.BillingAddress, &o.BillingContactName, &o.BillingContactPhone,
		&o.UseDifferentShipping, &o.IsDropshipping, &o.Notes, &o.InternalNotes,
		&shipped, &delivered, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, wrap(err)
	}
	if method.Valid {
		m := order.PaymentMethod(method.String)
		o.PaymentMethod = &m
	}
	o.ShippedAt = nullTime(shipped)
	o.DeliveredAt = nullTime(delivered)
	return &o, nil
}

func (s *PostgresStorage) CreateOrder(ctx context.Context, o *order.Order) error {
	q := `
        INSERT INTO orders (order_number, user_id, order_type, delivery_type, status, payment_method, payment_status,
            subtotal, vat_total, discount_total, shipping_cost, grand_total,
            shipping_address, shipping_contact_name, shipping_contact_phone,
            billing_address, billing_contact_name, billing_contact_phone,
            use_different_shipping, is_dropshipping, notes, internal_notes, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
        RETURNING id`
	return wrap(s.conn(ctx).QueryRowContext(ctx, q,
		o.Number, o.UserID, o.OrderType, o.DeliveryType, o.Status, o.PaymentMethod, o.PaymentStatus,
		o.Subtotal, o.VATTotal, o.DiscountTotal, o.ShippingCost, o.GrandTotal,
		o.ShippingAddress, o.ShippingContactName, o.ShippingContactPhone,
		o.BillingAddress, o.BillingContactName, o.BillingContactPhone,
		o.UseDifferentShipping, o.IsDropshipping, o.Notes, o.InternalNotes, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID))
}

func (s *PostgresStorage) CreateOrderItems(ctx context.Context, orderID int64, items []order.Item) error {
	q := `
        INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, vat_rate, discount_amount, total_price)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`
	for i := range items {
		it := &items[i]
		it.OrderID = orderID
		if err := s.conn(ctx).QueryRowContext(ctx, q,
			orderID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.VATRate, it.DiscountAmount, it.TotalPrice,
		).Scan(&it.ID); err != nil {
			return wrap(err)
		}
	}
	return nil
}

func (s *PostgresStorage) UpdateOrder(ctx context.Context, o *order.Order) error {
	q := `
        UPDATE orders SET status=$1, payment_method=$2, payment_status=$3,
            subtotal=$4, vat_total=$5, discount_total=$6, shipping_cost=$7, grand_total=$8,
            notes=$9, internal_notes=$10, shipped_at=$11, delivered_at=$12, updated_at=$13
        WHERE id=$14`
	return expectRow(s.conn(ctx).ExecContext(ctx, q,
		o.Status, o.PaymentMethod, o.PaymentStatus,
		o.Subtotal, o.VATTotal, o.DiscountTotal, o.ShippingCost, o.GrandTotal,
		o.Notes, o.InternalNotes, o.ShippedAt, o.DeliveredAt, o.UpdatedAt, o.ID,
	))
}

func (s *PostgresStorage) loadItems(ctx context.Context, o *order.Order) error {
	q := `
        SELECT id, order_id, product_id, product_name, quantity, unit_price, vat_rate, discount_amount, total_price
        FROM order_items WHERE order_id=$1 ORDER BY id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	o.Items = nil
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity,
			&it.UnitPrice, &it.VATRate, &it.DiscountAmount, &it.TotalPrice); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (s *PostgresStorage) findOrder(ctx context.Context, q string, arg any) (*order.Order, error) {
	o, err := scanOrder(s.conn(ctx).QueryRowContext(ctx, q, arg))
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresStorage) FindOrder(ctx context.Context, id int64) (*order.Order, error) {
	return s.findOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (s *PostgresStorage) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	return s.findOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (s *PostgresStorage) FindOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	return s.findOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number=$1`, number)
}

func (s *PostgresStorage) listOrders(ctx context.Context, q string, args ...any) ([]order.Order, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) ListOrders(ctx context.Context, f order.Filter) ([]order.Order, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != 0 {
		add("user_id=$%d", f.UserID)
	}
	if f.Status != "" {
		add("status=$%d", f.Status)
	}
	if f.PaymentStatus != "" {
		add("payment_status=$%d", f.PaymentStatus)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return s.listOrders(ctx, q, args...)
}

func (s *PostgresStorage) ListExpiredOrders(ctx context.Context, cutoff time.Time) ([]order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders
        WHERE status='pending' AND payment_status='pending' AND created_at < $1
        ORDER BY id`
	return s.listOrders(ctx, q, cutoff)
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *PostgresStorage) AppendOrderLog(ctx context.Context, l *order.Log) error {
	oldV, err := marshalJSON(l.OldValue)
	if err != nil {
		return fmt.Errorf("marshal old value: %w", err)
	}
	newV, err := marshalJSON(l.NewValue)
	if err != nil {
		return fmt.Errorf("marshal new value: %w", err)
	}
	q := `
        INSERT INTO order_logs (order_id, user_id, action, description, old_value, new_value, ip_address, user_agent, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`
	return wrap(s.conn(ctx).QueryRowContext(ctx, q,
		l.OrderID, l.UserID, l.Action, l.Description, oldV, newV, l.IPAddress, l.UserAgent, l.CreatedAt,
	).Scan(&l.ID))
}

func (s *PostgresStorage) ListOrderLogs(ctx context.Context, orderID int64) ([]order.Log, error) {
	q := `
        SELECT id, order_id, user_id, action, description, old_value, new_value, ip_address, user_agent, created_at
        FROM order_logs WHERE order_id=$1 ORDER BY id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []order.Log
	for rows.Next() {
		var l order.Log
		var userID sql.NullInt64
		var oldV, newV []byte
		if err := rows.Scan(&l.ID, &l.OrderID, &userID, &l.Action, &l.Description, &oldV, &newV,
			&l.IPAddress, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.UserID = nullInt64(userID)
		if l.OldValue, err = unmarshalJSON(oldV); err != nil {
			return nil, err
		}
		if l.NewValue, err = unmarshalJSON(newV); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
