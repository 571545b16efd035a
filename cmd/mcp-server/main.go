// Command mcp-server serves the riskwatch tools over stdio backed by
// PostgreSQL and, when configured, Redis.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/facility-ops/riskwatch/internal/app"
	"github.com/facility-ops/riskwatch/internal/config"
	"github.com/facility-ops/riskwatch/internal/logging"
	"github.com/facility-ops/riskwatch/internal/mcp"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	// stdout carries the protocol, so logs must not go there.
	logCfg := *configManager.GetLoggingConfig()
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewFromConfig(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise services")
	}
	defer application.Close()

	sweeperDone := application.Sweeper.Start(ctx)

	server := mcp.NewServer(mcp.Services{
		Assessments: application.Assessments,
		Benchmarks:  application.Benchmarks,
		Issues:      application.Issues,
		Clock:       application.Clock,
	}, version, logger)

	if err := server.RunStdio(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
	}

	stop()
	<-sweeperDone
}
