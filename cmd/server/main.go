package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/facility-ops/riskwatch/internal/api"
	"github.com/facility-ops/riskwatch/internal/app"
	"github.com/facility-ops/riskwatch/internal/config"
	"github.com/facility-ops/riskwatch/internal/logging"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	logger, err := logging.New(*configManager.GetLoggingConfig())
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewFromConfig(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise services")
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.WithError(err).Error("Failed to release resources")
		}
	}()

	sweeperDone := application.Sweeper.Start(ctx)

	server := api.NewServer(configManager, api.Services{
		Assessments: application.Assessments,
		Benchmarks:  application.Benchmarks,
		Issues:      application.Issues,
		Store:       application.Store,
		Clock:       application.Clock,
	}, logger)

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		stop()
	}

	<-sweeperDone
	logger.Info("Server stopped")
}
