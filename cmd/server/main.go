package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"visitorbook/internal/platform/config"
	"visitorbook/internal/platform/httpserver"
	"visitorbook/internal/platform/logger"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies, starts the HTTP server and background workers, and
// tears everything down on SIGINT/SIGTERM.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if os.Getenv("OWNER_ADDRESS") == "" {
		log.Warn("OWNER_ADDRESS not set; using the development owner", "owner", cfg.Owner.Hex())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		log.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	srv := httpserver.New(cfg.Addr, app.router)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting visitorbook",
			"addr", cfg.Addr,
			"store", cfg.StoreDriver,
			"contract", cfg.Contract.Hex(),
			"owner", cfg.Owner.Hex(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return app.worker.Run(gctx)
	})
	if cfg.Archive.Interval > 0 {
		g.Go(func() error {
			return app.exporter.Run(gctx, cfg.Archive.Interval)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	if err := app.Close(); err != nil {
		log.Error("failed to release resources", "error", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("server stopped with error", "error", runErr)
		os.Exit(1)
	}
	log.Info("visitorbook stopped")
}
