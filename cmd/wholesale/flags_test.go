package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := NewConfig(nil)
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}

func TestNewConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("RUN_ADDRESS", "127.0.0.1:9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := NewConfig([]string{"-a", ":8081", "-t", "2h"})
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Address)
	assert.Equal(t, 2*time.Hour, cfg.JWTTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "WS", cfg.OrderPrefix)
	assert.Equal(t, 24*time.Hour, cfg.PaymentGracePeriod)
}

func TestParseCreateUser(t *testing.T) {
	t.Setenv("DATABASE_URI", "postgres://env")

	dsn, req, err := parseCreateUser([]string{"-email", "b@example.com", "-password", "password123",
		"-company", "Kaya Ltd", "-city", "Bursa", "-d", "postgres://flag"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag", dsn)
	assert.Equal(t, "b@example.com", req.Email)
	require.NotNil(t, req.Company)
	assert.Equal(t, "Bursa", req.Company.City)

	dsn, req, err = parseCreateUser([]string{"-email", "ops@example.com", "-password", "password123", "-admin"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", dsn)
	assert.True(t, req.Admin)
	assert.Nil(t, req.Company)

	_, _, err = parseCreateUser([]string{"-email", "c@example.com", "-password", "password123"})
	assert.ErrorContains(t, err, "-company")
}
