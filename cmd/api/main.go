package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/chicagopizza/pizzeria-backend/api/controllers"
	"github.com/chicagopizza/pizzeria-backend/api/routes"
	"github.com/chicagopizza/pizzeria-backend/internal/cart"
	"github.com/chicagopizza/pizzeria-backend/internal/checkout"
	"github.com/chicagopizza/pizzeria-backend/internal/orders"
	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	"github.com/chicagopizza/pizzeria-backend/pkg/config"
	"github.com/chicagopizza/pizzeria-backend/pkg/db"
	"github.com/chicagopizza/pizzeria-backend/pkg/logger"
	"github.com/chicagopizza/pizzeria-backend/pkg/metrics"
	"github.com/chicagopizza/pizzeria-backend/pkg/migrate"
	"github.com/chicagopizza/pizzeria-backend/pkg/pubsub"
	"github.com/chicagopizza/pizzeria-backend/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	sessionBackend, err := storage.NewSessionBackend(redisClient, cfg.Checkout.SessionTTL)
	if err != nil {
		logg.Error(ctx, "failed to create session backend", err)
		os.Exit(1)
	}
	store, err := storage.NewStore(storage.StoreParams{
		Session: sessionBackend,
		Durable: storage.NewRepository(dbClient.DB()),
		Logger:  logg,
		Metrics: checkoutMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create storage", err)
		os.Exit(1)
	}

	readyChecks := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}
	submitter, sinkPinger, closeSubmitter, err := newSubmitter(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to create order submitter", err)
		os.Exit(1)
	}
	defer closeSubmitter()
	if sinkPinger != nil {
		readyChecks["pubsub"] = sinkPinger
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Store:     store,
		Submitter: submitter,
		Locker:    redisClient,
		Logger:    logg,
		Metrics:   checkoutMetrics,
		Config:    cfg.Checkout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}
	cartService, err := cart.NewService(store, nil)
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":             cfg.App.Env,
		"addr":            addr,
		"submission_mode": submitter.Mode(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			Checkout:    checkoutService,
			Cart:        cartService,
			Idempotency: redisClient,
			RateLimiter: redisClient,
			Gatherer:    registry,
			ReadyChecks: readyChecks,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		logg.Info(shutdownCtx, "api server shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}
}

// newSubmitter selects the order sink from the submission mode. The pinger is nil for the HTTP sink.
func newSubmitter(ctx context.Context, cfg *config.Config, logg *logger.Logger) (orders.Submitter, controllers.Pinger, func(), error) {
	windows := orders.Windows{Delivery: cfg.Checkout.DeliveryWindow, Pickup: cfg.Checkout.PickupWindow}
	if strings.EqualFold(strings.TrimSpace(cfg.Submission.Mode), config.SubmissionModeHTTP) {
		submitter, err := orders.NewHTTPSubmitter(cfg.Submission.URL, cfg.Submission.Timeout)
		if err != nil {
			return nil, nil, nil, err
		}
		return submitter, nil, func() {}, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, nil, nil, err
	}
	submitter, err := orders.NewPubSubSubmitter(client.OrdersPublisher(), windows)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	closeFn := func() {
		submitter.Stop()
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}
	return submitter, client, closeFn, nil
}
