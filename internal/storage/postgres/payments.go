package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/antonminaichev/wholesale/internal/types/payment"
)

const paymentColumns = `id, order_id, transaction_id, payment_method, amount, currency, status,
    card_holder_name, masked_card_number, bank_name, bank_receipt, gateway_response, error_message,
    processed_at, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*payment.Transaction, error) {
	var t payment.Transaction
	var resp []byte
	var processed sql.NullTime
	if err := row.Scan(&t.ID, &t.OrderID, &t.TransactionID, &t.Method, &t.Amount, &t.Currency, &t.Status,
		&t.CardHolderName, &t.MaskedCardNumber, &t.BankName, &t.BankReceipt, &resp, &t.ErrorMessage,
		&processed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, wrap(err)
	}
	var err error
	if t.GatewayResponse, err = unmarshalJSON(resp); err != nil {
		return nil, fmt.Errorf("gateway response: %w", err)
	}
	t.ProcessedAt = nullTime(processed)
	return &t, nil
}

func (s *PostgresStorage) CreatePayment(ctx context.Context, t *payment.Transaction) error {
	resp, err := marshalJSON(t.GatewayResponse)
	if err != nil {
		return err
	}
	q := `
        INSERT INTO payment_transactions (order_id, transaction_id, payment_method, amount, currency, status,
            card_holder_name, masked_card_number, bank_name, bank_receipt, gateway_response, error_message,
            processed_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15) RETURNING id`
	return wrap(s.conn(ctx).QueryRowContext(ctx, q,
		t.OrderID, t.TransactionID, t.Method, t.Amount, t.Currency, t.Status,
		t.CardHolderName, t.MaskedCardNumber, t.BankName, t.BankReceipt, resp, t.ErrorMessage,
		t.ProcessedAt, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID))
}

func (s *PostgresStorage) UpdatePayment(ctx context.Context, t *payment.Transaction) error {
	resp, err := marshalJSON(t.GatewayResponse)
	if err != nil {
		return err
	}
	q := `
        UPDATE payment_transactions SET status=$1, card_holder_name=$2, masked_card_number=$3,
            gateway_response=$4, error_message=$5, processed_at=$6, updated_at=$7
        WHERE id=$8`
	return expectRow(s.conn(ctx).ExecContext(ctx, q,
		t.Status, t.CardHolderName, t.MaskedCardNumber, resp, t.ErrorMessage, t.ProcessedAt, t.UpdatedAt, t.ID,
	))
}

func (s *PostgresStorage) LockPayment(ctx context.Context, id int64) (*payment.Transaction, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE id=$1 FOR UPDATE`
	return scanPayment(s.conn(ctx).QueryRowContext(ctx, q, id))
}

func (s *PostgresStorage) LockPaymentByTransactionID(ctx context.Context, transactionID string) (*payment.Transaction, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE transaction_id=$1 FOR UPDATE`
	return scanPayment(s.conn(ctx).QueryRowContext(ctx, q, transactionID))
}

func (s *PostgresStorage) ListPayments(ctx context.Context, orderID int64) ([]payment.Transaction, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE order_id=$1 ORDER BY id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payment.Transaction
	for rows.Next() {
		t, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
