package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/checkout-reconciler/internal/bootstrap"
	"github.com/cassiomorais/checkout-reconciler/internal/repository/postgres"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// The worker only does housekeeping. Reconciliation itself always runs
// inside the request that triggered it.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "checkout-reconciler-worker", "checkout_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)

	interval := app.Config.Maintenance.IdempotencyCleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}

	app.Logger.Info().
		Str("instance", app.Config.InstanceID).
		Dur("cleanup_interval", interval).
		Msg("Worker started")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runIdempotencyCleanup(gCtx, app.Logger, idempotencyRepo, interval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

type idempotencyCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

func runIdempotencyCleanup(ctx context.Context, logger zerolog.Logger, repo idempotencyCleaner, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		removed, err := repo.Cleanup(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Idempotency cleanup failed")
			continue
		}
		if removed > 0 {
			logger.Info().Int64("removed", removed).Msg("Expired idempotency keys removed")
		}
	}
}
