// Package main is the entry point of the user avatar service.
//
// main only reads configuration, builds the logger and hands over to
// internal/server; everything else lives in internal packages.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/user-avatar-service/internal/config"
	"github.com/sakif/user-avatar-service/internal/server"
	"github.com/sakif/user-avatar-service/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	// Bounds the time spent connecting to the store and the collector at start-up.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces failed", slog.String("error", err.Error()))
		}
	}()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Start blocks until SIGINT or SIGTERM.
	return srv.Start()
}
