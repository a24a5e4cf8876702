package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/storage/postgres"
	typesuser "github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/antonminaichev/wholesale/internal/user"
	"go.uber.org/zap"
)

// parseCreateUser reads the create-user subcommand flags.
func parseCreateUser(args []string) (string, user.ProvisionRequest, error) {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	dsn := fs.String("d", os.Getenv("DATABASE_URI"), "Database connection string")
	email := fs.String("email", "", "Login email")
	password := fs.String("password", "", "Password, at least 8 characters")
	name := fs.String("name", "", "Contact name")
	phone := fs.String("phone", "", "Contact phone")
	admin := fs.Bool("admin", false, "Create an administrator")
	company := fs.String("company", "", "Company name, required for buyers")
	address := fs.String("address", "", "Company address")
	city := fs.String("city", "", "City")
	district := fs.String("district", "", "District")
	postalCode := fs.String("postal-code", "", "Postal code")
	if err := fs.Parse(args); err != nil {
		return "", user.ProvisionRequest{}, err
	}

	req := user.ProvisionRequest{
		Email:    *email,
		Password: *password,
		Name:     *name,
		Phone:    *phone,
		Admin:    *admin,
	}
	if !*admin {
		if *company == "" {
			return "", req, errors.New("-company is required for buyers")
		}
		req.Company = &typesuser.Company{
			Name:       *company,
			Address:    *address,
			City:       *city,
			District:   *district,
			PostalCode: *postalCode,
		}
	}
	return *dsn, req, nil
}

func createUser(args []string) error {
	if err := logger.Initialize("INFO"); err != nil {
		return err
	}
	dsn, req, err := parseCreateUser(args)
	if err != nil {
		return err
	}
	if dsn == "" {
		return errors.New("create-user needs DATABASE_URI or -d")
	}
	store, err := postgres.NewPostgresStorage(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	u, err := user.NewService(store, nil, 0).Provision(ctx, req)
	if err != nil {
		return err
	}
	logger.Log.Info("user created",
		zap.Int64("user_id", u.ID),
		zap.String("email", u.Email),
		zap.Bool("admin", u.IsAdmin),
	)
	return nil
}
