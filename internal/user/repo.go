package user

import (
	"context"

	"github.com/antonminaichev/wholesale/internal/types/user"
)

type UserRepository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindUserByEmail(ctx context.Context, email string) (*user.User, error)
	CreateUser(ctx context.Context, u *user.User) error
	CreateCompany(ctx context.Context, c *user.Company) error
}
