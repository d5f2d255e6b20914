// Package main is the entry point for the intake worker Lambda. It consumes
// DataAvailable messages from the sbq-dataavailable queue and stores them
// through the intake service.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"postoffice/internal/app"
	"postoffice/internal/intake"
)

func main() {
	handler, err := initHandler()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(handler.Handle)
}

// initHandler runs once per cold start; the pool is reused across
// invocations.
func initHandler() (*intake.Handler, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("intake worker initializing", "version", cfg.Build.Version)

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
	return intake.NewHandler(svcs.Intake, deps.Codec, logger), nil
}
