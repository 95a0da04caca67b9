// Package app provides the top-level application lifecycle for the oracle
// settlement worker. It wires together all dependencies (stores, caches,
// price sources, the signer, and the settlement pipeline) and runs the
// scheduler until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/backitlabs/backit-oracle/internal/config"
	"github.com/backitlabs/backit-oracle/internal/oracle"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the settlement scheduler, and blocks
// until the context is cancelled. On return the registered cleanup functions
// run in reverse order via Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting oracle worker",
		slog.Duration("poll_interval", a.cfg.Scheduler.PollInterval.Duration),
		slog.Int("max_attempts", a.cfg.Scheduler.MaxAttempts),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	a.logger.InfoContext(ctx, "oracle identity",
		slog.String("public_key", deps.Signer.PublicKeyHex()),
	)

	if pending, err := deps.CallStore.ListPending(ctx); err != nil {
		a.logger.WarnContext(ctx, "pending backlog unavailable", slog.String("error", err.Error()))
	} else {
		a.logger.InfoContext(ctx, "pending calls at startup", slog.Int("count", len(pending)))
	}

	scheduler := oracle.NewScheduler(
		deps.CallStore,
		deps.Processor,
		deps.CallLocker,
		a.cfg.Scheduler.PollInterval.Duration,
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down oracle worker")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
