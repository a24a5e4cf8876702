package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCreds     = errors.New("invalid credentials")
	ErrInactive         = errors.New("account is not active")
	ErrUserExists       = errors.New("user already exists")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrInvalidEmail     = errors.New("invalid email")
)

type Service struct {
	repo      UserRepository
	jwtSecret []byte
	jwtTTL    time.Duration
}

func NewService(repo UserRepository, jwtSecret []byte, jwtTTL time.Duration) *Service {
	return &Service{repo: repo, jwtSecret: jwtSecret, jwtTTL: jwtTTL}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type ProvisionRequest struct {
	Email    string
	Password string
	Name     string
	Phone    string
	Admin    bool
	// Company is required for buyers and ignored for admins.
	Company *user.Company
}

// Provision creates an active account together with its company profile.
func (s *Service) Provision(ctx context.Context, req ProvisionRequest) (*user.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < 8 {
		return nil, ErrPasswordTooShort
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &user.User{
		Email:        email,
		Name:         req.Name,
		Phone:        req.Phone,
		PasswordHash: hash,
		IsAdmin:      req.Admin,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.FindUserByEmail(ctx, email); err == nil {
			return ErrUserExists
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := s.repo.CreateUser(ctx, u); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return ErrUserExists
			}
			return fmt.Errorf("create user: %w", err)
		}
		if req.Admin || req.Company == nil {
			return nil
		}
		c := *req.Company
		c.UserID = u.ID
		if err := s.repo.CreateCompany(ctx, &c); err != nil {
			return fmt.Errorf("create company: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (string, error) {
	u, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return "", ErrInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCreds
	}
	if !u.IsActive {
		return "", ErrInactive
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   u.Email,
		ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}
	return signed, nil
}
