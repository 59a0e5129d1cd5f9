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

	"github.com/cassiomorais/checkout-reconciler/internal/application/checkout"
	"github.com/cassiomorais/checkout-reconciler/internal/application/reconcile"
	"github.com/cassiomorais/checkout-reconciler/internal/bootstrap"
	"github.com/cassiomorais/checkout-reconciler/internal/controller"
	infraRedis "github.com/cassiomorais/checkout-reconciler/internal/infrastructure/redis"
	"github.com/cassiomorais/checkout-reconciler/internal/providers"
	"github.com/cassiomorais/checkout-reconciler/internal/repository/postgres"
	"github.com/cassiomorais/checkout-reconciler/internal/webhook"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "checkout-reconciler-api", "checkout")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config
	if cfg.Processor.Enabled {
		if missing := cfg.Processor.MissingKeys(); len(missing) > 0 {
			app.Logger.Warn().
				Str("missing", strings.Join(missing, ",")).
				Msg("Processor is enabled but keys are missing; checkout will be refused until they are set")
		}
	}

	// --- Repositories ---
	orderRepo := postgres.NewOrderRepository(app.Pool)
	cartRepo := postgres.NewCartRepository(app.Pool)
	tokenRepo := postgres.NewTokenRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Redis-backed coordination ---
	locker := infraRedis.NewOrderLocker(app.Redis, cfg.Reconcile.LockTTL, cfg.Reconcile.LockWait)
	nonces := infraRedis.NewNonceStore(app.Redis, cfg.Nonce.TTL)

	// --- Processor ---
	client, err := providers.New(cfg.Processor, app.Metrics, app.Logger)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build processor client")
	}

	// --- Application services ---
	handlers := reconcile.NewHandlerFactory(reconcile.Deps{
		Orders:  orderRepo,
		Carts:   cartRepo,
		Tokens:  tokenRepo,
		Tx:      txManager,
		Metrics: app.Metrics,
		Logger:  app.Logger,
	}, reconcile.PolicyFromConfig(cfg.Reconcile), cfg.Reconcile.Subscriptions)

	reconciler := reconcile.NewReconciler(orderRepo, client, handlers, locker, app.Metrics, app.Logger)

	builder := checkout.NewRequestBuilder(checkout.BuilderConfig{
		NotifyURL:      cfg.Reconcile.NotifyURL,
		PaymentOptions: cfg.Processor.PaymentOptions,
		Title:          cfg.Processor.Title,
		Description:    cfg.Processor.Description,
		TestReference:  cfg.Processor.TestReference,
		Disabled:       !cfg.Processor.Enabled,
	})
	initiate := checkout.NewInitiateUseCase(
		orderRepo, builder, nonces, client, handlers,
		cfg.Processor.SecretKey(), app.Metrics, app.Logger,
	)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Health:           controller.NewHealthController(app.Pool, app.Redis),
		Orders:           orderRepo,
		Reconciler:       reconciler,
		Initiate:         initiate,
		Nonces:           nonces,
		IdempotencyStore: idempotencyRepo,
		Gate:             webhook.NewGate(cfg.Webhook),
		Metrics:          app.Metrics,
		Server:           cfg.Server,
		Reconcile:        cfg.Reconcile,
		JWTSecret:        cfg.Auth.JWTSecret,
		Logger:           app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error().Err(err).Msg("Server stopped with error")
	}
	app.Logger.Info().
		Int64("requeries", reconciler.RequeryCount()).
		Msg("Server exited")
}
