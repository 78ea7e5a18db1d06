package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := BuildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, app); err != nil {
		slog.Error("server exited with error", "error", err)
		cleanup()
		os.Exit(1)
	}
	cleanup()
	slog.Info("server stopped")
}

// run serves the API (and metrics listener, if any) until ctx is cancelled,
// then shuts every listener down within the configured timeout.
func run(ctx context.Context, app *App) error {
	cfg := app.Config

	app.Logger.Info("starting questline server",
		"environment", cfg.Environment,
		"profile", cfg.Profile,
		"address", cfg.Server.Address,
		"storage_adapter", cfg.Storage.Adapter,
		"rules_path", cfg.Game.RulesPath)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info("server listening", "address", cfg.Server.Address)
		return serve(app.Server)
	})

	if app.MetricsServer != nil {
		g.Go(func() error {
			app.Logger.Info("metrics listening", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
			return serve(app.MetricsServer.Server)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		errs := []error{app.Server.Shutdown(shutdownCtx)}
		if app.MetricsServer != nil {
			errs = append(errs, app.MetricsServer.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return nil
}
