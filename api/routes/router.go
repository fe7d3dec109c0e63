package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chicagopizza/pizzeria-backend/api/controllers"
	"github.com/chicagopizza/pizzeria-backend/api/middleware"
	"github.com/chicagopizza/pizzeria-backend/api/responses"
	"github.com/chicagopizza/pizzeria-backend/internal/cart"
	"github.com/chicagopizza/pizzeria-backend/internal/checkout"
	"github.com/chicagopizza/pizzeria-backend/pkg/config"
	pkgerrors "github.com/chicagopizza/pizzeria-backend/pkg/errors"
	"github.com/chicagopizza/pizzeria-backend/pkg/logger"
	pkgredis "github.com/chicagopizza/pizzeria-backend/pkg/redis"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Checkout    checkout.Service
	Cart        cart.Service
	Idempotency pkgredis.IdempotencyStore
	RateLimiter rateLimiter
	Gatherer    prometheus.Gatherer
	ReadyChecks map[string]controllers.Pinger
}

func NewRouter(params RouterParams) http.Handler {
	cfg, logg := params.Config, params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "route not found"))
	})

	r.Get("/health/live", controllers.HealthLive(cfg.App.Env))
	r.Get("/health/ready", controllers.HealthReady(cfg.App.Env, logg, params.ReadyChecks))
	if params.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	idempotent := middleware.Idempotency(params.Idempotency, logg)
	promoPolicy := middleware.NewRateLimitPolicy("promo", cfg.RateLimit.PromoWindow, cfg.RateLimit.PromoLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireClient(logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(params.Cart, logg))
			r.Delete("/", controllers.CartClear(params.Cart, logg))
			r.With(idempotent).Post("/items", controllers.CartAddItem(params.Cart, logg))
			r.Patch("/items/{index}", controllers.CartUpdateQuantity(params.Cart, logg))
			r.Delete("/items/{index}", controllers.CartRemoveItem(params.Cart, logg))
		})

		r.Get("/pickup-locations", controllers.CheckoutPickupLocations(params.Checkout))

		r.Route("/checkout", func(r chi.Router) {
			r.Use(middleware.RequireSession(logg))

			r.Post("/session", controllers.CheckoutEnter(params.Checkout, logg))
			r.Get("/", controllers.CheckoutCurrent(params.Checkout, logg))
			r.Put("/order-type", controllers.CheckoutSelectOrderType(params.Checkout, logg))
			r.Put("/pickup-location", controllers.CheckoutSelectPickupLocation(params.Checkout, logg))
			r.Put("/customer", controllers.CheckoutUpdateCustomer(params.Checkout, logg))
			r.Put("/payment-method", controllers.CheckoutSelectPaymentMethod(params.Checkout, logg))
			r.Put("/tip", controllers.CheckoutSetTip(params.Checkout, logg))
			r.With(middleware.RateLimit(promoPolicy, params.RateLimiter, logg)).
				Post("/promo", controllers.CheckoutApplyPromo(params.Checkout, logg))
			r.Post("/steps/{step}/next", controllers.CheckoutNext(params.Checkout, logg))
			r.Post("/steps/{step}/back", controllers.CheckoutBack(params.Checkout, logg))
			r.Post("/steps/{step}/jump", controllers.CheckoutJump(params.Checkout, logg))
			r.Get("/pricing", controllers.CheckoutPricing(params.Checkout, logg))
			r.Get("/review", controllers.CheckoutReview(params.Checkout, logg))
			r.With(idempotent).Post("/orders", controllers.CheckoutPlaceOrder(params.Checkout, logg))
		})
	})

	return r
}
