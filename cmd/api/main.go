// Package main is the entry point for the post office HTTP API.
//
// It loads configuration, connects to Postgres and SQS, wires the mailbox
// and intake services into the core chassis and serves until SIGINT or
// SIGTERM, then drains in-flight requests.
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
	"time"

	"postoffice/internal/api/handlers"
	"postoffice/internal/app"
	"postoffice/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("post office API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := app.Build(ctx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	svcs, err := app.NewServices(deps)
	if err != nil {
		deps.Close()
		return err
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		deps.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = deps.Metrics
	srv.Closers = append(srv.Closers, deps.Close)
	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
		ProbeName: "database",
		Fn:        deps.Pool.Ping,
	})

	mailboxHandler := handlers.NewMailboxHandler(svcs.Mailbox, logger)
	notificationHandler := handlers.NewNotificationHandler(svcs.Intake, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		mailboxHandler.RegisterRoutes,
		notificationHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	return serve(srv, logger)
}

func serve(srv *core.Server, logger *slog.Logger) error {
	cfg := srv.Config
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
