package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/google-pay/storefront/internal/cart"
	"github.com/google-pay/storefront/internal/catalog"
	"github.com/google-pay/storefront/internal/handlers"
	"github.com/google-pay/storefront/internal/paymentsheet"
	"github.com/google-pay/storefront/internal/platform/config"
	"github.com/google-pay/storefront/internal/platform/observability"
	"github.com/google-pay/storefront/internal/platform/storage"
	"github.com/google-pay/storefront/internal/pricing"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	cfg, cfgErr := config.Load()
	level := cfg.Log.Level
	if cfgErr != nil {
		level = "info"
	}

	baseLogger, err := observability.NewLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	if cfgErr != nil {
		var invalid *config.ValidationError
		if errors.As(cfgErr, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(cfgErr))
	}

	store, err := storage.Open(ctx, storage.Options{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
		Logger:  logger.Named("storage"),
	})
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		logger.Warn("cart will not survive a restart", zap.Error(err))
	case err != nil:
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	carts, err := cart.NewStore(cart.StoreDeps{
		Storage:         store,
		Key:             cfg.Storage.CartKey,
		MaxLineQuantity: cfg.Cart.MaxLineQuantity,
		Logger:          eventLogger(logger.Named("cart")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart store", zap.Error(err))
	}

	catalogStore, err := catalog.NewStore(catalog.StoreDeps{
		Source:     newCatalogSource(cfg.Catalog, logger),
		Categories: cfg.Policy.Categories,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog", zap.Error(err))
	}

	builder, err := pricing.NewTransactionBuilder(cfg.Policy)
	if err != nil {
		logger.Fatal("failed to initialise pricing", zap.Error(err))
	}

	sheetLogger := eventLogger(logger.Named("paymentsheet"))
	synchronizer, err := paymentsheet.NewSynchronizer(paymentsheet.SynchronizerDeps{
		Carts:    carts,
		Builder:  builder,
		Shipping: builder.Shipping(),
		Orders:   paymentsheet.NewMockOrderProcessor(paymentsheet.MockOrderProcessorDeps{Logger: sheetLogger}),
		Template: paymentsheet.NewRequestTemplate(cfg.Payment),
		Logger:   sheetLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment sheet", zap.Error(err))
	}
	defer synchronizer.Close()

	catalogHandlers := handlers.NewCatalogHandlers(catalogStore)
	cartHandlers := handlers.NewCartHandlers(carts, catalogStore)
	checkoutHandlers := handlers.NewCheckoutHandlers(handlers.CheckoutDeps{
		Checkout: synchronizer,
		Carts:    carts,
		Catalog:  catalogStore,
		Pricer:   builder,
		Shipping: builder.Shipping(),
	})

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthStartedAt(startedAt),
		handlers.WithReadinessCheck("cart_storage", func(ctx context.Context) error {
			_, err := carts.Cart(ctx)
			return err
		}),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newCatalogSource(cfg config.CatalogConfig, logger *zap.Logger) catalog.Source {
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		logger.Info("catalog served over http", zap.String("baseUrl", base))
		return catalog.NewHTTPSource(base, cfg.Timeout)
	}
	logger.Info("catalog served from disk", zap.String("dir", cfg.DataDir))
	return catalog.NewDirSource(os.DirFS(cfg.DataDir))
}

// eventLogger adapts zap to the event logger the domain packages accept.
func eventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		if strings.HasSuffix(event, "_failed") || strings.HasSuffix(event, ".error") {
			logger.Warn(event, zFields...)
			return
		}
		logger.Info(event, zFields...)
	}
}
