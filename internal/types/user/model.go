package user

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	Phone        string    `db:"phone" json:"phone,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Company is the buyer profile. Balance is a cache of the last balance transaction.
type Company struct {
	ID         int64           `db:"id" json:"id"`
	UserID     int64           `db:"user_id" json:"user_id"`
	Name       string          `db:"company_name" json:"company_name"`
	Address    string          `db:"address" json:"address"`
	City       string          `db:"city" json:"city"`
	District   string          `db:"district" json:"district"`
	PostalCode string          `db:"postal_code" json:"postal_code"`
	Balance    decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

func (c *Company) FullAddress() string {
	out := c.Address
	for _, part := range []string{c.District, c.City, c.PostalCode} {
		if part != "" {
			out += ", " + part
		}
	}
	return out
}

// Actor is whoever triggers an operation. ID 0 is the system itself.
type Actor struct {
	ID        int64
	Name      string
	Admin     bool
	IP        string
	UserAgent string
}

var System = Actor{Name: "system", Admin: true}

func (a Actor) IsSystem() bool {
	return a.ID == 0
}

// CreatedBy returns the actor id for nullable created_by columns.
func (a Actor) CreatedBy() *int64 {
	if a.IsSystem() {
		return nil
	}
	id := a.ID
	return &id
}
