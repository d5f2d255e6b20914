// Package main is the entry point for the maintenance Lambda. EventBridge
// rules invoke it with a MaintenancePayload naming the task to run.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"postoffice/internal/app"
	"postoffice/internal/scheduler"
)

func main() {
	svc, err := initService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(svc.Handle)
}

func initService() (*scheduler.MaintenanceService, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("maintenance Lambda initializing (cold start)", "version", cfg.Build.Version)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	svcs, err := app.NewServices(deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	m := cfg.Maintenance
	return scheduler.NewMaintenanceService(deps.Stores, svcs.Dequeue, scheduler.Retention{
		StaleBundleAge:       m.StaleBundleAge,
		IdempotencyRetention: m.IdempotencyRetention,
		DequeuedRetention:    m.DequeuedRetention,
		BatchLimit:           m.BatchLimit,
	}, deps.Clock, logger), nil
}
