package postgres

import (
	"context"
	"database/sql"

	"github.com/antonminaichev/wholesale/internal/types/balance"
	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/shopspring/decimal"
)

const userColumns = `id, email, name, phone, password_hash, is_admin, is_active, created_at`

func scanUser(row interface{ Scan(...any) error }) (*user.User, error) {
	u := &user.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.PasswordHash, &u.IsAdmin, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, wrap(err)
	}
	return u, nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, u *user.User) error {
	q := `INSERT INTO users (email, name, phone, password_hash, is_admin, is_active)
        VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`
	return wrap(s.conn(ctx).QueryRowContext(ctx, q,
		u.Email, u.Name, u.Phone, u.PasswordHash, u.IsAdmin, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt))
}

func (s *PostgresStorage) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(s.conn(ctx).QueryRowContext(ctx, q, email))
}

func (s *PostgresStorage) FindUserByID(ctx context.Context, id int64) (*user.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(s.conn(ctx).QueryRowContext(ctx, q, id))
}

const companyColumns = `id, user_id, company_name, address, city, district, postal_code, balance, updated_at`

func scanCompany(row *sql.Row) (*user.Company, error) {
	c := &user.Company{}
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Address, &c.City, &c.District, &c.PostalCode, &c.Balance, &c.UpdatedAt); err != nil {
		return nil, wrap(err)
	}
	return c, nil
}

func (s *PostgresStorage) CreateCompany(ctx context.Context, c *user.Company) error {
	q := `INSERT INTO companies (user_id, company_name, address, city, district, postal_code, balance)
        VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, updated_at`
	return wrap(s.conn(ctx).QueryRowContext(ctx, q,
		c.UserID, c.Name, c.Address, c.City, c.District, c.PostalCode, c.Balance,
	).Scan(&c.ID, &c.UpdatedAt))
}

func (s *PostgresStorage) GetCompany(ctx context.Context, userID int64) (*user.Company, error) {
	q := `SELECT ` + companyColumns + ` FROM companies WHERE user_id=$1`
	return scanCompany(s.conn(ctx).QueryRowContext(ctx, q, userID))
}

func (s *PostgresStorage) LockCompany(ctx context.Context, userID int64) (*user.Company, error) {
	q := `SELECT ` + companyColumns + ` FROM companies WHERE user_id=$1 FOR UPDATE`
	return scanCompany(s.conn(ctx).QueryRowContext(ctx, q, userID))
}

func (s *PostgresStorage) SetCompanyBalance(ctx context.Context, userID int64, amount decimal.Decimal) error {
	q := `UPDATE companies SET balance=$1, updated_at=now() WHERE user_id=$2`
	return expectRow(s.conn(ctx).ExecContext(ctx, q, amount, userID))
}

func (s *PostgresStorage) AppendBalanceTransaction(ctx context.Context, t *balance.Transaction) error {
	refType, refID := t.Reference.Columns()
	q := `
        INSERT INTO balance_transactions
            (user_id, type, amount, balance_before, balance_after, reference_type, reference_id,
             description, adjustment_reason, created_by, ip_address, user_agent, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`
	return wrap(s.conn(ctx).QueryRowContext(ctx, q,
		t.UserID, t.Type, t.Amount, t.BalanceBefore, t.BalanceAfter, refType, refID,
		t.Description, t.AdjustmentReason, t.CreatedBy, t.IPAddress, t.UserAgent, t.CreatedAt,
	).Scan(&t.ID))
}

func (s *PostgresStorage) ListBalanceTransactions(ctx context.Context, userID int64) ([]balance.Transaction, error) {
	q := `
        SELECT id, user_id, type, amount, balance_before, balance_after, reference_type, reference_id,
               description, adjustment_reason, created_by, ip_address, user_agent, created_at
        FROM balance_transactions WHERE user_id=$1 ORDER BY id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []balance.Transaction
	for rows.Next() {
		var t balance.Transaction
		var refType sql.NullString
		var refID, createdBy sql.NullInt64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
			&refType, &refID, &t.Description, &t.AdjustmentReason, &createdBy, &t.IPAddress, &t.UserAgent, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Reference, err = ref.Parse(nullString(refType), nullInt64(refID)); err != nil {
			return nil, err
		}
		t.CreatedBy = nullInt64(createdBy)
		out = append(out, t)
	}
	return out, rows.Err()
}
