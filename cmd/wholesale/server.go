package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antonminaichev/wholesale/internal/balance"
	"github.com/antonminaichev/wholesale/internal/cart"
	"github.com/antonminaichev/wholesale/internal/events"
	"github.com/antonminaichev/wholesale/internal/filestore"
	"github.com/antonminaichev/wholesale/internal/lock"
	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/order"
	"github.com/antonminaichev/wholesale/internal/payment"
	"github.com/antonminaichev/wholesale/internal/pricing"
	"github.com/antonminaichev/wholesale/internal/router"
	"github.com/antonminaichev/wholesale/internal/shipment"
	"github.com/antonminaichev/wholesale/internal/stock"
	"github.com/antonminaichev/wholesale/internal/storage"
	"github.com/antonminaichev/wholesale/internal/storage/memory"
	"github.com/antonminaichev/wholesale/internal/storage/postgres"
	"github.com/antonminaichev/wholesale/internal/user"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "create-user" {
		err = createUser(os.Args[2:])
	} else {
		err = run(os.Args[1:])
	}
	if err != nil {
		panic(err)
	}
}

func openStorage(ctx context.Context, dsn string) (storage.Storage, error) {
	if dsn == "" {
		logger.Log.Warn("DATABASE_URI is empty, running on the in-memory store; data is lost on restart")
		return memory.New(), nil
	}
	store, err := postgres.NewPostgresStorage(dsn)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func newPublisher(cfg *Config) (events.Publisher, func() error) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.LogPublisher{}, func() error { return nil }
	}
	p := events.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
	return p, p.Close
}

func newLocker(ctx context.Context, addr string) (lock.Locker, func() error, error) {
	if addr == "" {
		return lock.NewLocalLocker(), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}
	return lock.NewRedisLocker(client), client.Close, nil
}

func run(args []string) error {
	cfg, err := NewConfig(args)
	if err != nil {
		return err
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startCtx, cancelStart := context.WithTimeout(ctx, 5*time.Second)
	defer cancelStart()

	store, err := openStorage(startCtx, cfg.DatabaseConnection)
	if err != nil {
		logger.Log.Error("failed to initialize storage", zap.Error(err))
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	locker, closeLocker, err := newLocker(startCtx, cfg.RedisAddr)
	if err != nil {
		logger.Log.Error("failed to connect to redis", zap.Error(err))
		return err
	}
	defer closeLocker()

	pub, closePub := newPublisher(cfg)
	defer closePub()

	files, err := filestore.NewLocal(cfg.StorageDir)
	if err != nil {
		return err
	}

	userSvc := user.NewService(store, []byte(cfg.JWTSecret), cfg.JWTTTL)
	stockLedger := stock.NewLedger(store, store)
	balanceLedger := balance.NewLedger(store, store)
	resolver := pricing.NewResolver(store)
	cartSvc := cart.NewService(store, store, resolver)
	orderSvc := order.NewService(store, store, resolver, stockLedger, balanceLedger, pub, cfg.OrderPrefix).WithCart(cartSvc)

	gatewayCfg := payment.GatewayConfig{
		MerchantID:   cfg.PaytrMerchantID,
		MerchantKey:  cfg.PaytrMerchantKey,
		MerchantSalt: cfg.PaytrMerchantSalt,
		BaseURL:      cfg.PaytrBaseURL,
		OkURL:        cfg.PaytrOkURL,
		FailURL:      cfg.PaytrFailURL,
		TestMode:     cfg.PaytrTestMode,
		Debug:        cfg.PaytrDebug,
		TimeoutLimit: cfg.PaytrTimeoutLimit,
	}
	gateway := payment.NewHTTPGateway(cfg.PaytrBaseURL, cfg.HTTPClientTimeout)
	processor := payment.NewProcessor(store, store, orderSvc, balanceLedger, gateway, gatewayCfg, files, pub)

	carrier := shipment.NewArasClient(cfg.CarrierBaseURL, cfg.CarrierUsername, cfg.CarrierPassword, cfg.CarrierCustomerCode, cfg.HTTPClientTimeout)
	tracker := shipment.NewTracker(store, store, orderSvc, carrier, files, pub)

	r := router.NewRouter(router.Handlers{
		User:     user.NewHandler(userSvc),
		Order:    order.NewHandler(orderSvc),
		Cart:     cart.NewHandler(cartSvc),
		Balance:  balance.NewHandler(balanceLedger),
		Stock:    stock.NewHandler(stockLedger),
		Payment:  payment.NewHandler(processor),
		Shipment: shipment.NewHandler(tracker),
	}, router.Config{
		JWTSecret:     []byte(cfg.JWTSecret),
		WebhookSecret: cfg.CarrierWebhookSecret,
	}, store, store)

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go order.SweepLoop(ctx, orderSvc, locker, cfg.PaymentGracePeriod, cfg.SweepInterval)
	go stock.LowStockLoop(ctx, stockLedger, pub, locker, cfg.LowStockThreshold, cfg.LowStockInterval)
	go shipment.DispatcherLoop(ctx, tracker, locker, shipment.PollerConfig{
		Interval:   cfg.TrackingInterval,
		StaleAfter: cfg.TrackingStaleAfter,
		Delay:      cfg.TrackingDelay,
	})

	go func() {
		logger.Log.Info("starting server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("ListenAndServe failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down server")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Log.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Log.Info("server stopped gracefully")
	return nil
}
