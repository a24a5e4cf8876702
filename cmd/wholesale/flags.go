package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var ErrMissingJWTSecret = errors.New("ENV JWT_SECRET must be set")

type Config struct {
	Address            string        `env:"RUN_ADDRESS" envDefault:"localhost:8080"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"INFO"`
	DatabaseConnection string        `env:"DATABASE_URI"`
	JWTSecret          string        `env:"JWT_SECRET"`
	JWTTTL             time.Duration `env:"JWT_TTL" envDefault:"24h"`
	OrderPrefix        string        `env:"ORDER_PREFIX" envDefault:"WS"`
	StorageDir         string        `env:"STORAGE_DIR" envDefault:"./storage"`
	HTTPClientTimeout  time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"30s"`

	PaymentGracePeriod time.Duration `env:"PAYMENT_GRACE_PERIOD" envDefault:"24h"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	LowStockThreshold  int           `env:"LOW_STOCK_THRESHOLD" envDefault:"10"`
	LowStockInterval   time.Duration `env:"LOW_STOCK_INTERVAL" envDefault:"24h"`

	PaytrMerchantID   string `env:"PAYTR_MERCHANT_ID"`
	PaytrMerchantKey  string `env:"PAYTR_MERCHANT_KEY"`
	PaytrMerchantSalt string `env:"PAYTR_MERCHANT_SALT"`
	PaytrBaseURL      string `env:"PAYTR_BASE_URL" envDefault:"https://www.paytr.com"`
	PaytrOkURL        string `env:"PAYTR_OK_URL"`
	PaytrFailURL      string `env:"PAYTR_FAIL_URL"`
	PaytrTestMode     bool   `env:"PAYTR_TEST_MODE" envDefault:"true"`
	PaytrDebug        bool   `env:"PAYTR_DEBUG"`
	PaytrTimeoutLimit int    `env:"PAYTR_TIMEOUT_LIMIT" envDefault:"30"`

	CarrierBaseURL       string `env:"CARRIER_API_URL"`
	CarrierUsername      string `env:"CARRIER_USERNAME"`
	CarrierPassword      string `env:"CARRIER_PASSWORD"`
	CarrierCustomerCode  string `env:"CARRIER_CUSTOMER_CODE"`
	CarrierWebhookSecret string `env:"CARRIER_WEBHOOK_SECRET"`

	TrackingInterval   time.Duration `env:"TRACKING_INTERVAL" envDefault:"4h"`
	TrackingStaleAfter time.Duration `env:"TRACKING_STALE_AFTER" envDefault:"4h"`
	TrackingDelay      time.Duration `env:"TRACKING_DELAY" envDefault:"2s"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"wholesale.events"`
	RedisAddr    string   `env:"REDIS_ADDR"`
}

// NewConfig reads .env, the environment and then args, in increasing priority.
func NewConfig(args []string) (*Config, error) {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}

	fs := flag.NewFlagSet("wholesale", flag.ContinueOnError)
	address := fs.String("a", cfg.Address, "{Host:port} for server")
	loglevel := fs.String("l", cfg.LogLevel, "Log level for server")
	databaseConnection := fs.String("d", cfg.DatabaseConnection, "Database connection string")
	jwtTTL := fs.Duration("t", cfg.JWTTTL, "TTL for JWT token(e.g. 24h; 30m )")
	storageDir := fs.String("s", cfg.StorageDir, "Directory for receipts and shipping labels")
	kafkaBrokers := fs.String("k", strings.Join(cfg.KafkaBrokers, ","), "Comma separated Kafka brokers, empty logs events only")
	redisAddr := fs.String("r", cfg.RedisAddr, "Redis address for job locks, empty uses in-process locks")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Address = *address
	cfg.LogLevel = *loglevel
	cfg.DatabaseConnection = *databaseConnection
	cfg.JWTTTL = *jwtTTL
	cfg.StorageDir = *storageDir
	cfg.KafkaBrokers = nil
	if *kafkaBrokers != "" {
		cfg.KafkaBrokers = strings.Split(*kafkaBrokers, ",")
	}
	cfg.RedisAddr = *redisAddr

	return cfg, nil
}
