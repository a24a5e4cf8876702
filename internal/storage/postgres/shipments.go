package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/antonminaichev/wholesale/internal/types/shipment"
)

const shipmentColumns = `id, order_id, carrier, tracking_number, status, status_description, weight, desi,
    label_path, is_dropshipping, shipped_at, delivered_at, delivery_signature, last_update_at, created_at`

func scanShipment(row interface{ Scan(...any) error }) (*shipment.Shipment, error) {
	var sh shipment.Shipment
	var shipped, delivered, lastUpdate sql.NullTime
	if err := row.Scan(&sh.ID, &sh.OrderID, &sh.Carrier, &sh.TrackingNumber, &sh.Status, &sh.StatusDescription,
		&sh.Weight, &sh.Desi, &sh.LabelPath, &sh.IsDropshipping, &shipped, &delivered,
		&sh.DeliverySignature, &lastUpdate, &sh.CreatedAt); err != nil {
		return nil, wrap(err)
	}
	sh.ShippedAt = nullTime(shipped)
	sh.DeliveredAt = nullTime(delivered)
	sh.LastUpdateAt = nullTime(lastUpdate)
	return &sh, nil
}

func (s *PostgresStorage) CreateShipment(ctx context.Context, sh *shipment.Shipment) error {
	q := `
        INSERT INTO shipments (order_id, carrier, tracking_number, status, status_description, weight, desi,
            label_path, is_dropshipping, shipped_at, last_update_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`
	return wrap(s.conn(ctx).QueryRowContext(ctx, q,
		sh.OrderID, sh.Carrier, sh.TrackingNumber, sh.Status, sh.StatusDescription, sh.Weight, sh.Desi,
		sh.LabelPath, sh.IsDropshipping, sh.ShippedAt, sh.LastUpdateAt, sh.CreatedAt,
	).Scan(&sh.ID))
}

func (s *PostgresStorage) UpdateShipment(ctx context.Context, sh *shipment.Shipment) error {
	q := `
        UPDATE shipments SET status=$1, status_description=$2, delivered_at=$3, delivery_signature=$4, last_update_at=$5
        WHERE id=$6`
	return expectRow(s.conn(ctx).ExecContext(ctx, q,
		sh.Status, sh.StatusDescription, sh.DeliveredAt, sh.DeliverySignature, sh.LastUpdateAt, sh.ID,
	))
}

func (s *PostgresStorage) FindShipmentByOrder(ctx context.Context, orderID int64) (*shipment.Shipment, error) {
	q := `SELECT ` + shipmentColumns + ` FROM shipments WHERE order_id=$1`
	return scanShipment(s.conn(ctx).QueryRowContext(ctx, q, orderID))
}

func (s *PostgresStorage) LockShipmentByTracking(ctx context.Context, trackingNumber string) (*shipment.Shipment, error) {
	q := `SELECT ` + shipmentColumns + ` FROM shipments WHERE tracking_number=$1 FOR UPDATE`
	return scanShipment(s.conn(ctx).QueryRowContext(ctx, q, trackingNumber))
}

func (s *PostgresStorage) ListShipmentsForPolling(ctx context.Context, staleBefore time.Time) ([]shipment.Shipment, error) {
	q := `SELECT ` + shipmentColumns + ` FROM shipments
        WHERE status NOT IN ('delivered','returned','lost')
          AND (last_update_at IS NULL OR last_update_at < $1)
        ORDER BY id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, staleBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shipment.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sh)
	}
	return out, rows.Err()
}
