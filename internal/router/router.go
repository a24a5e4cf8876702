package router

import (
	"context"
	"net/http"
	"time"

	"github.com/antonminaichev/wholesale/internal/balance"
	"github.com/antonminaichev/wholesale/internal/cart"
	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/metrics"
	"github.com/antonminaichev/wholesale/internal/middleware"
	"github.com/antonminaichev/wholesale/internal/order"
	"github.com/antonminaichev/wholesale/internal/payment"
	"github.com/antonminaichev/wholesale/internal/shipment"
	"github.com/antonminaichev/wholesale/internal/stock"
	"github.com/antonminaichev/wholesale/internal/user"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Handlers struct {
	User     *user.Handler
	Order    *order.Handler
	Cart     *cart.Handler
	Balance  *balance.Handler
	Stock    *stock.Handler
	Payment  *payment.Handler
	Shipment *shipment.Handler
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	JWTSecret     []byte
	WebhookSecret string
}

func tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "wholesale")
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}
}

func NewRouter(h Handlers, cfg Config, users middleware.UserRepository, db Pinger) chi.Router {
	r := chi.NewRouter()

	r.Use(tracing)
	r.Use(logger.WithLogging)
	r.Use(metrics.Middleware)
	r.Use(chiMiddleware.Recoverer)

	r.Use(middleware.GzipHandler)

	r.Get("/health", health(db))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/webhooks", func(r chi.Router) {
		r.Post("/payment", h.Payment.Webhook)
		r.With(middleware.SignatureHandler("X-Aras-Signature", cfg.WebhookSecret)).
			Post("/carrier", h.Shipment.Webhook)
	})

	r.Post("/api/user/login", h.User.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTMiddleware(cfg.JWTSecret, users))

		r.Mount("/api/user/orders", h.Order.UserRoutes(h.Shipment.UserRoutes))
		r.Mount("/api/user/cart", h.Cart.Routes())
		r.Mount("/api/user/payments", h.Payment.UserRoutes())
		r.Mount("/api/user/balance", h.Balance.UserRoutes())

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.AdminOnly)

			r.Mount("/orders", h.Order.AdminRoutes(h.Shipment.AdminRoutes))
			r.Mount("/payments", h.Payment.AdminRoutes())
			r.Mount("/products", h.Stock.Routes())
			r.Mount("/buyers", h.Balance.AdminRoutes())
		})
	})

	return r
}
