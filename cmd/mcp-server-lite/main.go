// Package main provides the lightweight entry point for the riskwatch MCP
// server. It needs no external services: SQLite for storage and an in-process
// cache.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/facility-ops/riskwatch/internal/app"
	"github.com/facility-ops/riskwatch/internal/config"
	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/internal/logging"
	"github.com/facility-ops/riskwatch/internal/mcp"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.LoadLiteConfig()

	logger, err := logging.New(domain.LoggingConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: "stderr",
	})
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	logger.WithField("data_dir", cfg.DataDir).Info("Starting riskwatch MCP server (lite)")

	application, err := app.NewLite(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise services")
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	logger.Info("riskwatch MCP server (lite) stopped")
}
